package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	conflict := uuid.New()
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{fmt.Errorf("wrap: %w", ErrInvalidQuantity), ClassValidation},
		{ErrInvalidTransition, ClassValidation},
		{ErrAssignmentNotFound, ClassNotFound},
		{&OverbookedError{Requested: 3, Available: 2}, ClassCapacity},
		{&ItemUnavailableError{ItemID: uuid.New(), ConflictID: &conflict}, ClassCapacity},
		{fmt.Errorf("%w: removing 3", ErrWouldOversell), ClassCapacity},
		{mapStoreError(repository.ErrSerialization), ClassTransient},
		{mapStoreError(context.DeadlineExceeded), ClassTransient},
		{&ConstraintViolationError{Invariant: "bulk >= 0"}, ClassSystem},
		{errors.New("disk on fire"), ClassSystem},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestItemUnavailableError_Unwrap(t *testing.T) {
	plain := &ItemUnavailableError{ItemID: uuid.New(), Reason: "item is maintenance"}
	assert.ErrorIs(t, plain, ErrItemUnavailable)
	assert.NotErrorIs(t, plain, ErrAlreadyReserved)

	id := uuid.New()
	held := &ItemUnavailableError{ItemID: uuid.New(), ConflictID: &id}
	assert.ErrorIs(t, held, ErrItemUnavailable)
	assert.ErrorIs(t, held, ErrAlreadyReserved)
	assert.Contains(t, held.Error(), id.String())
}

func TestMapStoreError(t *testing.T) {
	ce := &repository.ConstraintError{Constraint: "ex_assignment_items_no_overlap", Err: errors.New("23P01")}
	err := mapStoreError(fmt.Errorf("insert: %w", ce))

	var cv *ConstraintViolationError
	assert.True(t, errors.As(err, &cv))
	assert.Equal(t, "ex_assignment_items_no_overlap", cv.Invariant)
	assert.ErrorIs(t, err, ErrConstraintViolation)
	assert.False(t, IsRetryable(err))

	assert.ErrorIs(t, mapStoreError(repository.ErrTxTimeout), ErrTimeout)
	assert.ErrorIs(t, mapStoreError(repository.ErrSerialization), ErrContended)
	assert.Nil(t, mapStoreError(nil))
	assert.Equal(t, "capacity", ClassCapacity.String())
}
