package services

import (
	"context"
	"testing"
	"time"

	"pos-sync-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLedger(repo *fakeSnapshotRepo) *InventoryLedger {
	return NewInventoryLedger(repo, NewSessionRegistry(zap.NewNop()), time.Hour, zap.NewNop())
}

func applyUpdate(t *testing.T, l *InventoryLedger, store, product string, qty int, action string) *models.InventoryRecord {
	t.Helper()
	rec, _, err := l.Update(context.Background(), models.InventoryUpdateRequest{
		StoreID:   store,
		ProductID: product,
		Quantity:  qty,
		Action:    action,
	})
	require.NoError(t, err)
	return rec
}

func TestLedgerActions(t *testing.T) {
	ledger := newTestLedger(newFakeSnapshotRepo())
	defer ledger.Close()

	// Add on an empty ledger starts from zero.
	rec := applyUpdate(t, ledger, "S1", "P1", 5, models.ActionAdd)
	assert.Equal(t, 5, rec.Quantity)

	// Subtract clamps at zero, never negative.
	rec = applyUpdate(t, ledger, "S1", "P1", 10, models.ActionSubtract)
	assert.Equal(t, 0, rec.Quantity)

	rec = applyUpdate(t, ledger, "S1", "P1", 7, models.ActionSet)
	assert.Equal(t, 7, rec.Quantity)

	// Set with negative input clamps to zero.
	rec = applyUpdate(t, ledger, "S1", "P1", -3, models.ActionSet)
	assert.Equal(t, 0, rec.Quantity)
}

func TestLedgerQuantityNeverNegative(t *testing.T) {
	ledger := newTestLedger(newFakeSnapshotRepo())
	defer ledger.Close()

	steps := []struct {
		qty    int
		action string
	}{
		{3, models.ActionAdd},
		{9, models.ActionSubtract},
		{-5, models.ActionSet},
		{2, models.ActionAdd},
		{1, models.ActionSubtract},
	}
	for _, step := range steps {
		rec := applyUpdate(t, ledger, "S1", "P1", step.qty, step.action)
		assert.GreaterOrEqual(t, rec.Quantity, 0)
	}
}

func TestLedgerRejectsNegativeQuantity(t *testing.T) {
	repo := newFakeSnapshotRepo()
	ledger := newTestLedger(repo)
	defer ledger.Close()

	applyUpdate(t, ledger, "S1", "P1", 5, models.ActionAdd)
	saves := repo.saveCount()

	conn := &fakeConn{}
	require.NoError(t, ledger.Connect(context.Background(), NewSession("S1", conn)))
	frames := conn.frameCount()

	for _, action := range []string{models.ActionAdd, models.ActionSubtract} {
		t.Run(action, func(t *testing.T) {
			_, _, err := ledger.Update(context.Background(), models.InventoryUpdateRequest{
				StoreID:   "S1",
				ProductID: "P1",
				Quantity:  -5,
				Action:    action,
			})
			assert.ErrorIs(t, err, ErrNegativeQuantity)
		})
	}
	assert.Equal(t, saves, repo.saveCount(), "no mutation")
	assert.Equal(t, frames, conn.frameCount(), "no broadcast")

	rec := applyUpdate(t, ledger, "S1", "P1", 0, models.ActionAdd)
	assert.Equal(t, 5, rec.Quantity, "a negative add must never commit")
}

func TestLedgerUnknownAction(t *testing.T) {
	repo := newFakeSnapshotRepo()
	ledger := newTestLedger(repo)
	defer ledger.Close()

	applyUpdate(t, ledger, "S1", "P1", 5, models.ActionAdd)
	saves := repo.saveCount()

	conn := &fakeConn{}
	require.NoError(t, ledger.Connect(context.Background(), NewSession("S1", conn)))
	frames := conn.frameCount()

	_, _, err := ledger.Update(context.Background(), models.InventoryUpdateRequest{
		StoreID:   "S1",
		ProductID: "P1",
		Quantity:  5,
		Action:    "multiply",
	})
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, saves, repo.saveCount(), "no mutation")
	assert.Equal(t, frames, conn.frameCount(), "no broadcast")
}

func TestLedgerBroadcastScoping(t *testing.T) {
	ledger := newTestLedger(newFakeSnapshotRepo())
	defer ledger.Close()

	connA := &fakeConn{}
	connB := &fakeConn{}
	require.NoError(t, ledger.Connect(context.Background(), NewSession("S1", connA)))
	require.NoError(t, ledger.Connect(context.Background(), NewSession("S2", connB)))
	framesA := connA.frameCount() // init
	framesB := connB.frameCount()

	applyUpdate(t, ledger, "S1", "P1", 5, models.ActionAdd)

	msgs := connA.envelopes()
	require.Equal(t, framesA+1, len(msgs))
	last := msgs[len(msgs)-1]
	assert.Equal(t, models.MessageTypeInventoryUpdate, last["type"])
	assert.Equal(t, "S1:P1", last["key"])
	assert.Equal(t, float64(5), last["quantity"])

	assert.Equal(t, framesB, connB.frameCount(), "store S2 sessions must not see store S1 updates")
}

func TestLedgerConnectSendsInit(t *testing.T) {
	ledger := newTestLedger(newFakeSnapshotRepo())
	defer ledger.Close()

	applyUpdate(t, ledger, "S1", "P1", 5, models.ActionAdd)
	applyUpdate(t, ledger, "S2", "P9", 2, models.ActionAdd)

	conn := &fakeConn{}
	require.NoError(t, ledger.Connect(context.Background(), NewSession("S1", conn)))

	msgs := conn.envelopes()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageTypeInit, msgs[0]["type"])
	records := msgs[0]["data"].(map[string]any)
	assert.Contains(t, records, "S1:P1")
	assert.Contains(t, records, "S2:P9")
}

func TestLedgerPersistFailure(t *testing.T) {
	repo := newFakeSnapshotRepo()
	ledger := newTestLedger(repo)
	defer ledger.Close()

	applyUpdate(t, ledger, "S1", "P1", 5, models.ActionAdd)

	repo.failSaves = 1
	_, _, err := ledger.Update(context.Background(), models.InventoryUpdateRequest{
		StoreID:   "S1",
		ProductID: "P1",
		Quantity:  1,
		Action:    models.ActionAdd,
	})
	require.Error(t, err)

	// The uncommitted mutation is discarded.
	rec := applyUpdate(t, ledger, "S1", "P1", 0, models.ActionAdd)
	assert.Equal(t, 5, rec.Quantity)
}

func TestLedgerRecovery(t *testing.T) {
	repo := newFakeSnapshotRepo()

	ledger := newTestLedger(repo)
	applyUpdate(t, ledger, "S1", "P1", 5, models.ActionAdd)
	applyUpdate(t, ledger, "S1", "P2", 8, models.ActionSet)
	ledger.Close()

	restarted := newTestLedger(repo)
	defer restarted.Close()

	rec := applyUpdate(t, restarted, "S1", "P1", 0, models.ActionAdd)
	assert.Equal(t, 5, rec.Quantity, "state after restart equals state before restart")
	rec = applyUpdate(t, restarted, "S1", "P2", 0, models.ActionAdd)
	assert.Equal(t, 8, rec.Quantity)
}
