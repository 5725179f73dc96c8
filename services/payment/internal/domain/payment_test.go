package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	approved := NewPayment(1, true, "tx-1", now)
	assert.Equal(t, PaymentApproved, approved.Status)
	assert.Empty(t, approved.Reason)

	declined := NewPayment(2, false, "tx-2", now)
	assert.Equal(t, PaymentDeclined, declined.Status)
	assert.Equal(t, ReasonDeclined, declined.Reason)
}

func TestRefund(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	p := NewPayment(1, true, "tx-1", now)

	refunded, err := p.Refund(later)
	require.NoError(t, err)
	assert.True(t, refunded)
	assert.Equal(t, PaymentRefunded, p.Status)
	assert.Equal(t, later, p.UpdatedAt)

	refunded, err = p.Refund(later)
	require.NoError(t, err)
	assert.False(t, refunded)

	declined := NewPayment(2, false, "tx-2", now)
	refunded, err = declined.Refund(later)
	require.NoError(t, err)
	assert.False(t, refunded)

	_, err = (&Payment{Status: "lost"}).Refund(later)
	assert.Error(t, err)
}
