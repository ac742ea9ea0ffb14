package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// MemoryStore keeps everything in process behind one lock, so every write is atomic.
type MemoryStore struct {
	mu        sync.RWMutex
	bookings  map[string]*models.Booking
	payments  map[string]*models.Payment
	byBooking map[string]string // booking id -> payment id
	history   map[string][]models.HistoryEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:  make(map[string]*models.Booking),
		payments:  make(map[string]*models.Payment),
		byBooking: make(map[string]string),
		history:   make(map[string][]models.HistoryEntry),
	}
}

func (s *MemoryStore) CreateBooking(ctx context.Context, booking *models.Booking, payment *models.Payment, history string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := *booking
	b.Seats = append([]string(nil), booking.Seats...)
	p := *payment
	s.bookings[b.ID] = &b
	s.payments[p.ID] = &p
	s.byBooking[b.ID] = p.ID
	s.history[b.ID] = append(s.history[b.ID], models.HistoryEntry{BookingID: b.ID, Entry: history, CreatedAt: b.CreatedAt})
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "payment %s not found", id)
	}
	return copyPayment(p), nil
}

func (s *MemoryStore) GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byBooking[bookingID]
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "no payment for booking %s", bookingID)
	}
	return copyPayment(s.payments[id]), nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "booking %s not found", id)
	}
	cp := *b
	cp.Seats = append([]string(nil), b.Seats...)
	return &cp, nil
}

func (s *MemoryStore) ListPayments(ctx context.Context, status models.PaymentStatus) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Payment
	for _, p := range s.payments {
		if p.Status == status {
			out = append(out, copyPayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SetBookingStatus overwrites a booking status outside the ledger. Tests use
// it to simulate a divergent upstream record.
func (s *MemoryStore) SetBookingStatus(bookingID string, status models.BookingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[bookingID]; ok {
		b.Status = status
	}
}

func (s *MemoryStore) ApplyTransition(ctx context.Context, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[u.PaymentID]
	if !ok {
		return errs.Newf(errs.ErrNotFound, "payment %s not found", u.PaymentID)
	}
	b, ok := s.bookings[u.BookingID]
	if !ok {
		return errs.Newf(errs.ErrNotFound, "booking %s not found", u.BookingID)
	}
	if p.Status != u.From {
		return ErrStaleStatus
	}

	p.Status = u.To
	p.UpdatedAt = u.At
	if u.Fraud {
		p.Fraud = true
	}
	if u.Refund != nil {
		r := *u.Refund
		p.Refund = &r
	}
	if u.BookingStatus != "" {
		b.Status = u.BookingStatus
		b.UpdatedAt = u.At
	}
	s.history[u.BookingID] = append(s.history[u.BookingID], models.HistoryEntry{BookingID: u.BookingID, Entry: u.History, CreatedAt: u.At})
	return nil
}

func (s *MemoryStore) AppendHistory(ctx context.Context, bookingID, entry string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[bookingID]; !ok {
		return errs.Newf(errs.ErrNotFound, "booking %s not found", bookingID)
	}
	s.history[bookingID] = append(s.history[bookingID], models.HistoryEntry{BookingID: bookingID, Entry: entry, CreatedAt: at})
	return nil
}

func (s *MemoryStore) History(ctx context.Context, bookingID string) ([]models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.bookings[bookingID]; !ok {
		return nil, errs.Newf(errs.ErrNotFound, "booking %s not found", bookingID)
	}
	return append([]models.HistoryEntry(nil), s.history[bookingID]...), nil
}

func copyPayment(p *models.Payment) *models.Payment {
	cp := *p
	if p.Refund != nil {
		r := *p.Refund
		cp.Refund = &r
	}
	return &cp
}
