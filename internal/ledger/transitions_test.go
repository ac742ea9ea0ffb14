package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from models.PaymentStatus
		to   models.PaymentStatus
		want bool
	}{
		{models.PaymentStatusPending, models.PaymentStatusVerified, true},
		{models.PaymentStatusPending, models.PaymentStatusFailed, true},
		{models.PaymentStatusPending, models.PaymentStatusRefunded, false},
		{models.PaymentStatusVerified, models.PaymentStatusRefunded, true},
		{models.PaymentStatusVerified, models.PaymentStatusPending, false},
		{models.PaymentStatusFailed, models.PaymentStatusPending, true},
		{models.PaymentStatusFailed, models.PaymentStatusVerified, true},
		{models.PaymentStatusCompleted, models.PaymentStatusFailed, true},
		{models.PaymentStatusCompleted, models.PaymentStatusVerified, true},
		{models.PaymentStatusRefunded, models.PaymentStatusVerified, false},
		{models.PaymentStatusRefunded, models.PaymentStatusPending, false},
		{models.PaymentStatusRefunded, models.PaymentStatusRefunded, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidateTransition_Messages(t *testing.T) {
	err := ValidateTransition(models.PaymentStatusPending, models.PaymentStatusCompleted)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	assert.Equal(t, "cannot transition payment from pending to completed", err.Error())

	assert.NoError(t, ValidateTransition(models.PaymentStatusPending, models.PaymentStatusVerified))
}

func TestEffectsCoverEveryLegalEdge(t *testing.T) {
	for from, targets := range AllowedTransitions {
		for _, to := range targets {
			if isNoop(from, to) {
				continue
			}
			_, ok := effects[[2]models.PaymentStatus{from, to}]
			assert.True(t, ok, "%s -> %s has no effect entry", from, to)
		}
	}
}
