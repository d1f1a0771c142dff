package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be > 0")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrEmptyReservation = errors.New("reservation requests neither bulk quantity nor tracked items")
	ErrInvalidInput     = errors.New("invalid input")

	ErrProductNotFound    = errors.New("product not found")
	ErrItemNotFound       = errors.New("tracked item not found")
	ErrAssignmentNotFound = errors.New("assignment not found")

	ErrSKUAlreadyExists = errors.New("sku already exists")
	ErrInactiveProduct  = errors.New("product is inactive")

	ErrInsufficientBulk = errors.New("insufficient bulk stock")
	ErrWouldOversell    = errors.New("removal would oversell reserved bulk capacity")
	ErrOverbooked       = errors.New("overbooked")
	ErrItemUnavailable  = errors.New("tracked item unavailable")
	ErrAlreadyReserved  = errors.New("tracked item already reserved for overlapping dates")

	ErrContended = errors.New("ledger contended, retry later")
	ErrTimeout   = errors.New("ledger transaction timed out")

	ErrConstraintViolation = errors.New("ledger constraint violation")

	ErrInvalidTransition = models.ErrInvalidTransition
)

// OverbookedError names the first day a bulk request does not fit.
type OverbookedError struct {
	Date      time.Time
	Requested int32
	Available int32
}

func (e *OverbookedError) Error() string {
	return fmt.Sprintf("overbooked on %s: requested %d, available %d",
		e.Date.Format(models.DateLayout), e.Requested, e.Available)
}

func (e *OverbookedError) Unwrap() error { return ErrOverbooked }

// ItemUnavailableError is returned for a tracked item that cannot be held.
// When ConflictID is set the item is held by that assignment and the error
// also matches ErrAlreadyReserved.
type ItemUnavailableError struct {
	ItemID     uuid.UUID
	Status     models.ItemStatus
	ConflictID *uuid.UUID
	Reason     string
}

func (e *ItemUnavailableError) Error() string {
	if e.ConflictID != nil {
		return fmt.Sprintf("item %s unavailable: held by assignment %s", e.ItemID, *e.ConflictID)
	}
	return fmt.Sprintf("item %s unavailable: %s", e.ItemID, e.Reason)
}

func (e *ItemUnavailableError) Unwrap() []error {
	if e.ConflictID != nil {
		return []error{ErrItemUnavailable, ErrAlreadyReserved}
	}
	return []error{ErrItemUnavailable}
}

// ConstraintViolationError means an invariant failed at commit. It points at
// a modelling bug or corrupted data and is never retried.
type ConstraintViolationError struct {
	Invariant string
	Err       error
}

func (e *ConstraintViolationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("constraint violation: %s", e.Invariant)
	}
	return fmt.Sprintf("constraint violation: %s: %v", e.Invariant, e.Err)
}

func (e *ConstraintViolationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConstraintViolation}
	}
	return []error{ErrConstraintViolation, e.Err}
}

type ErrorClass int

const (
	ClassSystem ErrorClass = iota
	ClassValidation
	ClassNotFound
	ClassCapacity
	ClassTransient
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassNotFound:
		return "not_found"
	case ClassCapacity:
		return "capacity"
	case ClassTransient:
		return "transient"
	default:
		return "system"
	}
}

// Classify separates "nothing was available" from "a system problem occurred".
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrEmptyReservation),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrSKUAlreadyExists),
		errors.Is(err, ErrInactiveProduct):
		return ClassValidation
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrAssignmentNotFound):
		return ClassNotFound
	case errors.Is(err, ErrInsufficientBulk),
		errors.Is(err, ErrWouldOversell),
		errors.Is(err, ErrOverbooked),
		errors.Is(err, ErrItemUnavailable),
		errors.Is(err, ErrAlreadyReserved):
		return ClassCapacity
	case IsRetryable(err):
		return ClassTransient
	default:
		return ClassSystem
	}
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrContended) || errors.Is(err, ErrTimeout)
}

// mapStoreError translates repository errors into the ledger taxonomy.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}

	var ce *repository.ConstraintError
	switch {
	case errors.Is(err, repository.ErrSerialization):
		return fmt.Errorf("%w: %v", ErrContended, err)
	case errors.Is(err, repository.ErrTxTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.As(err, &ce):
		return &ConstraintViolationError{Invariant: ce.Constraint, Err: err}
	}
	return err
}
