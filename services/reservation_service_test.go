package services

import (
	"testing"

	"raffle-system/config"
	"raffle-system/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeSorted(t *testing.T) {
	assert.Equal(t, []int{3, 7, 21}, dedupeSorted([]int{21, 3, 7}))
	assert.Equal(t, []int{7}, dedupeSorted([]int{7, 7, 7}))
	assert.Equal(t, []int{1, 2}, dedupeSorted([]int{2, 1, 2, 1}))
	assert.Empty(t, dedupeSorted(nil))

	// The input slice is left untouched
	in := []int{9, 1, 9}
	_ = dedupeSorted(in)
	assert.Equal(t, []int{9, 1, 9}, in)
}

func TestSampleTickets(t *testing.T) {
	pool := make([]ticketRow, 20)
	for i := range pool {
		pool[i] = ticketRow{ID: string(rune('a' + i)), Number: i + 1}
	}

	picks := sampleTickets(pool, 5)
	require.Len(t, picks, 5)

	seen := make(map[string]bool)
	valid := make(map[string]bool)
	for _, row := range pool {
		valid[row.ID] = true
	}
	for _, pick := range picks {
		assert.False(t, seen[pick.ID], "ticket %s sampled twice", pick.ID)
		assert.True(t, valid[pick.ID], "ticket %s not in pool", pick.ID)
		seen[pick.ID] = true
	}
}

func TestSampleTickets_WholePool(t *testing.T) {
	pool := []ticketRow{{ID: "t1", Number: 1}, {ID: "t2", Number: 2}}

	picks := sampleTickets(pool, 2)

	require.Len(t, picks, 2)
	assert.NotEqual(t, picks[0].ID, picks[1].ID)
}

func TestCheckQuantity(t *testing.T) {
	svc := &ReservationService{cfg: &config.Config{MinTicketsPerOrder: 1, MaxTicketsPerOrder: 5}}

	assert.NoError(t, svc.checkQuantity(1))
	assert.NoError(t, svc.checkQuantity(5))

	err := svc.checkQuantity(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrInvalidQuantity)

	err = svc.checkQuantity(6)
	require.Error(t, err)
	var qty *status.QuantityError
	require.ErrorAs(t, err, &qty)
	assert.Equal(t, 6, qty.Qty)
	assert.Equal(t, 1, qty.Min)
	assert.Equal(t, 5, qty.Max)
}

func TestTicketContentionIsRetryable(t *testing.T) {
	// The contention marker must not be terminal or the retry wrapper would
	// surface it instead of re-reading and resampling.
	assert.False(t, status.IsDomain(errTicketContention))
}
