package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

func setupHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(logger.NewNop())
	go hub.Run(ctx)

	r := mux.NewRouter()
	r.HandleFunc("/flights/{flightId}/ws", hub.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, flightID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/flights/" + flightID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_BroadcastsSeatEventsPerFlight(t *testing.T) {
	hub, srv := setupHub(t)
	viewerA := dial(t, srv, "FL1")
	viewerB := dial(t, srv, "FL1")
	other := dial(t, srv, "FL2")

	require.Eventually(t, func() bool {
		return hub.ClientCount("FL1") == 2 && hub.ClientCount("FL2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.PublishSeatEvent(models.SeatEvent{FlightID: "FL1", Code: "12A", Status: models.SeatStatusSelected, HeldBy: "s1"})

	for _, conn := range []*websocket.Conn{viewerA, viewerB} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeSeatsUpdated, msg.Type)
		assert.Equal(t, "FL1", msg.FlightID)
		assert.Equal(t, []SeatUpdate{{Code: "12A", Status: models.SeatStatusSelected, HeldBy: "s1"}}, msg.Seats)
	}

	hub.BroadcastSessionExpired("FL2", "s9")
	msg := readMessage(t, other)
	assert.Equal(t, MessageTypeSessionExpired, msg.Type)
	assert.Equal(t, "s9", msg.SessionID)
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	hub, srv := setupHub(t)
	conn := dial(t, srv, "FL3")
	require.Eventually(t, func() bool { return hub.ClientCount("FL3") == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount("FL3") == 0 }, 2*time.Second, 10*time.Millisecond)
}
