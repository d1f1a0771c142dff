package service_test

import (
	"context"
	"errors"
	"testing"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionItem_Lifecycle(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	pid := seedProduct(t, svc, 0)
	added, err := svc.AddTrackedStock(ctx, pid, 1, "purchase")
	require.NoError(t, err)
	x := added.ItemIDs[0]

	_, err = svc.TransitionItem(ctx, x, models.ItemReserved, "")
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
	assert.Equal(t, service.ClassValidation, service.Classify(err))

	res, err := svc.Reserve(ctx, service.ReserveInput{ProductID: pid, JobID: uuid.New(), Range: dr(t, "2024-06-01", "2024-06-03"), TrackedItemIDs: []uuid.UUID{x}})
	require.NoError(t, err)
	aid := res.Assignments[0].ID

	it, err := svc.TransitionItem(ctx, x, models.ItemDelivered, "loaded on truck")
	require.NoError(t, err)
	assert.Equal(t, models.ItemDelivered, it.Status)

	it, err = svc.TransitionItem(ctx, x, models.ItemReturned, "")
	require.NoError(t, err)
	assert.Equal(t, models.ItemReturned, it.Status)

	// единственная единица вернулась, бронь закрыта
	a, err := svc.GetAssignment(ctx, aid)
	require.NoError(t, err)
	assert.True(t, a.IsReleased())

	it, err = svc.TransitionItem(ctx, x, models.ItemAvailable, "inspected")
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, it.Status)
	assert.Nil(t, it.CurrentAssignmentID)

	_, err = svc.TransitionItem(ctx, uuid.New(), models.ItemAvailable, "")
	assert.ErrorIs(t, err, service.ErrItemNotFound)

	_, err = svc.TransitionItem(ctx, x, models.ItemStatus("LOST"), "")
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestTransitionItem_MaintenanceExcluded(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	pid := seedProduct(t, svc, 2)
	added, err := svc.AddTrackedStock(ctx, pid, 3, "purchase")
	require.NoError(t, err)
	x := added.ItemIDs[0]
	r := dr(t, "2024-06-01", "2024-06-02")

	_, err = svc.TransitionItem(ctx, x, models.ItemMaintenance, "broken zipper")
	require.NoError(t, err)

	days, err := svc.GetAvailability(ctx, pid, r)
	require.NoError(t, err)
	for _, d := range days {
		assert.Equal(t, int32(2), d.TrackedAvailable)
		assert.Equal(t, int32(4), d.TotalAvailable)
	}

	_, err = svc.Reserve(ctx, service.ReserveInput{ProductID: pid, JobID: uuid.New(), Range: r, TrackedItemIDs: []uuid.UUID{x}})
	require.ErrorIs(t, err, service.ErrItemUnavailable)
	assert.NotErrorIs(t, err, service.ErrAlreadyReserved)

	var iu *service.ItemUnavailableError
	require.True(t, errors.As(err, &iu))
	assert.Equal(t, models.ItemMaintenance, iu.Status)

	_, err = svc.TransitionItem(ctx, x, models.ItemAvailable, "fixed")
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, service.ReserveInput{ProductID: pid, JobID: uuid.New(), Range: r, TrackedItemIDs: []uuid.UUID{x}})
	assert.NoError(t, err)
}

func TestTransitionItem_MaintenanceKeepsFutureHold(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	pid := seedProduct(t, svc, 0)
	added, err := svc.AddTrackedStock(ctx, pid, 1, "purchase")
	require.NoError(t, err)
	x := added.ItemIDs[0]

	res, err := svc.Reserve(ctx, service.ReserveInput{ProductID: pid, JobID: uuid.New(), Range: dr(t, "2024-08-01", "2024-08-02"), TrackedItemIDs: []uuid.UUID{x}})
	require.NoError(t, err)

	_, err = svc.TransitionItem(ctx, x, models.ItemMaintenance, "")
	require.NoError(t, err)
	it, err := svc.TransitionItem(ctx, x, models.ItemAvailable, "")
	require.NoError(t, err)

	assert.Equal(t, models.ItemReserved, it.Status)
	require.NotNil(t, it.CurrentAssignmentID)
	assert.Equal(t, res.Assignments[0].ID, *it.CurrentAssignmentID)
}

func TestTransitionItem_Retire(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	pid := seedProduct(t, svc, 0)
	added, err := svc.AddTrackedStock(ctx, pid, 2, "purchase")
	require.NoError(t, err)
	x, y := added.ItemIDs[0], added.ItemIDs[1]

	res, err := svc.Reserve(ctx, service.ReserveInput{ProductID: pid, JobID: uuid.New(), Range: dr(t, "2024-06-01", "2024-06-03"), TrackedItemIDs: []uuid.UUID{x, y}})
	require.NoError(t, err)
	aid := res.Assignments[0].ID

	it, err := svc.TransitionItem(ctx, x, models.ItemRetired, "")
	require.NoError(t, err)
	assert.Equal(t, models.ItemRetired, it.Status)
	assert.Nil(t, it.CurrentAssignmentID)

	st, err := svc.GetStock(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, int32(1), st.TrackedItemCount)

	// y всё ещё удерживается, бронь открыта
	a, err := svc.GetAssignment(ctx, aid)
	require.NoError(t, err)
	assert.False(t, a.IsReleased())
	ids, _ := a.TrackedItemIDs()
	assert.Equal(t, []uuid.UUID{y}, ids)

	adjs, _, err := svc.ListAdjustments(ctx, pid, 1, 0)
	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.Equal(t, models.OpRetireTracked, adjs[0].OperationType)
	assert.Equal(t, int32(-1), adjs[0].Delta)
	require.NotNil(t, adjs[0].ReferenceID)
	assert.Equal(t, x, *adjs[0].ReferenceID)

	_, err = svc.TransitionItem(ctx, x, models.ItemAvailable, "")
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	_, err = svc.Reserve(ctx, service.ReserveInput{ProductID: pid, JobID: uuid.New(), Range: dr(t, "2024-07-01", "2024-07-01"), TrackedItemIDs: []uuid.UUID{x}})
	assert.ErrorIs(t, err, service.ErrItemUnavailable)

	rep, err := svc.ReconcileStock(ctx, pid)
	require.NoError(t, err)
	assert.True(t, rep.Consistent)
	assert.Equal(t, int64(1), rep.OwnedItems)

	_, err = svc.TransitionItem(ctx, y, models.ItemRetired, "")
	require.NoError(t, err)
	a, err = svc.GetAssignment(ctx, aid)
	require.NoError(t, err)
	assert.True(t, a.IsReleased())
}
