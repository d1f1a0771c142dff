package models

import (
	"errors"
	"fmt"
)

type ItemStatus string

const (
	ItemAvailable   ItemStatus = "AVAILABLE"
	ItemReserved    ItemStatus = "RESERVED"
	ItemDelivered   ItemStatus = "DELIVERED"
	ItemReturned    ItemStatus = "RETURNED"
	ItemMaintenance ItemStatus = "MAINTENANCE"
	ItemRetired     ItemStatus = "RETIRED"
)

var AllItemStatuses = []ItemStatus{
	ItemAvailable, ItemReserved, ItemDelivered, ItemReturned, ItemMaintenance, ItemRetired,
}

var ErrInvalidTransition = errors.New("invalid item status transition")

// TransitionOrigin says who asks for a status change. Only the reservation
// path may move an item into RESERVED, and only a release may move it back.
type TransitionOrigin int

const (
	OriginManual TransitionOrigin = iota
	OriginReservation
	OriginRelease
)

var manualTransitions = map[ItemStatus][]ItemStatus{
	ItemReserved:    {ItemDelivered},
	ItemDelivered:   {ItemReturned},
	ItemReturned:    {ItemAvailable},
	ItemMaintenance: {ItemAvailable},
}

func (s ItemStatus) Valid() bool {
	for _, v := range AllItemStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Usable reports whether the item counts towards tracked availability.
func (s ItemStatus) Usable() bool {
	return s != ItemMaintenance && s != ItemRetired
}

func (s ItemStatus) Terminal() bool {
	return s == ItemRetired
}

// CanTransition reports whether from -> to is allowed for the given origin.
func CanTransition(from, to ItemStatus, origin TransitionOrigin) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() || from == to {
		return false
	}

	switch to {
	case ItemRetired, ItemMaintenance:
		return true
	case ItemReserved:
		return origin == OriginReservation && from == ItemAvailable
	}

	if origin == OriginRelease && from == ItemReserved && to == ItemAvailable {
		return true
	}

	for _, next := range manualTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns the new status.
func Transition(from, to ItemStatus, origin TransitionOrigin) (ItemStatus, error) {
	if !CanTransition(from, to, origin) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}
