package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/utils"
)

func TestSplitAmount(t *testing.T) {
	tests := []struct {
		name           string
		amount         int64
		rate           float64
		wantPlatform   int64
		wantExpert     int64
		wantResidualOK bool
	}{
		{"default consultation fee", 199, 0.30, 60, 139, true},
		{"round amount", 100, 0.30, 30, 70, true},
		{"zero amount", 0, 0.30, 0, 0, true},
		{"one unit", 1, 0.30, 0, 1, true},
		{"half rounds up", 5, 0.30, 2, 4, true},
		{"large amount", 99999, 0.30, 30000, 69999, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform, expert := SplitAmount(tt.amount, tt.rate)
			assert.Equal(t, tt.wantPlatform, platform)
			assert.Equal(t, tt.wantExpert, expert)

			// Shares are rounded independently, so the sum may drift from
			// the amount by at most one unit.
			residual := platform + expert - tt.amount
			assert.LessOrEqual(t, residual, int64(1))
			assert.GreaterOrEqual(t, residual, int64(-1))
		})
	}
}

func TestSplitAmountResidualBounded(t *testing.T) {
	for amount := int64(0); amount <= 1000; amount++ {
		platform, expert := SplitAmount(amount, 0.30)
		residual := platform + expert - amount
		if residual > 1 || residual < -1 {
			t.Fatalf("amount %d: residual %d out of bounds (platform %d, expert %d)", amount, residual, platform, expert)
		}
	}
}

func TestLedgerService_MarkCollected(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_ledger_mark_collected", consultationsCollection, messagesCollection)
	cfg := testConfig()
	dispatcher := &mockDispatcher{}
	svc := NewConsultationService(db, cfg, NewQueueService(db, cfg), NewResponder(), dispatcher)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()

	expertID := primitive.NewObjectID()
	c := submitTestConsultation(t, svc, primitive.NewObjectID())

	// Only completed consultations can be collected.
	_, err := ledger.MarkCollected(ctx, c.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Accept(ctx, c.ID, expertID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, c.ID, expertID)
	require.NoError(t, err)

	collected, err := ledger.MarkCollected(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionCollected, collected.CollectionStatus)
	assert.NotNil(t, collected.CollectedAt)
	firstCollectedAt := *collected.CollectedAt

	// Idempotent: a second call is a no-op success and keeps the timestamp.
	again, err := ledger.MarkCollected(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionCollected, again.CollectionStatus)
	require.NotNil(t, again.CollectedAt)
	assert.True(t, again.CollectedAt.Equal(firstCollectedAt))

	_, err = ledger.MarkCollected(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerService_EarningsSummary(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_ledger_earnings", consultationsCollection, messagesCollection)
	cfg := testConfig()
	dispatcher := &mockDispatcher{}
	svc := NewConsultationService(db, cfg, NewQueueService(db, cfg), NewResponder(), dispatcher)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()

	expertID := primitive.NewObjectID()

	complete := func() primitive.ObjectID {
		c := submitTestConsultation(t, svc, primitive.NewObjectID())
		_, err := svc.Accept(ctx, c.ID, expertID)
		require.NoError(t, err)
		_, err = svc.Complete(ctx, c.ID, expertID)
		require.NoError(t, err)
		return c.ID
	}

	first := complete()
	complete()

	// An open consultation for the same expert does not count.
	open := submitTestConsultation(t, svc, primitive.NewObjectID())
	_, err := svc.Accept(ctx, open.ID, expertID)
	require.NoError(t, err)

	_, err = ledger.MarkCollected(ctx, first)
	require.NoError(t, err)

	summary, err := ledger.EarningsSummary(ctx, expertID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CompletedCount)
	assert.Equal(t, int64(278), summary.TotalEarnings) // 2 x 139
	assert.Equal(t, int64(139), summary.Collected)
	assert.Equal(t, int64(139), summary.Pending)
}
