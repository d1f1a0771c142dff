package memstore

import (
	"fmt"
	"time"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
)

// state is the full data set. A product transaction works on a scoped copy
// holding one product's rows and merges it back on commit.
type state struct {
	products    map[uuid.UUID]models.Product
	stocks      map[uuid.UUID]models.MasterStock
	items       map[uuid.UUID]models.TrackedItem
	assignments map[uuid.UUID]models.Assignment
	adjustments map[uuid.UUID][]models.StockAdjustment // by product
}

func newState() *state {
	return &state{
		products:    make(map[uuid.UUID]models.Product),
		stocks:      make(map[uuid.UUID]models.MasterStock),
		items:       make(map[uuid.UUID]models.TrackedItem),
		assignments: make(map[uuid.UUID]models.Assignment),
		adjustments: make(map[uuid.UUID][]models.StockAdjustment),
	}
}

func (s *state) scope(productID uuid.UUID) *state {
	out := newState()
	if p, ok := s.products[productID]; ok {
		out.products[productID] = p
	}
	if st, ok := s.stocks[productID]; ok {
		out.stocks[productID] = st
	}
	for id, it := range s.items {
		if it.ProductID == productID {
			out.items[id] = cloneItem(it)
		}
	}
	for id, a := range s.assignments {
		if a.ProductID == productID {
			out.assignments[id] = cloneAssignment(a)
		}
	}
	out.adjustments[productID] = append([]models.StockAdjustment(nil), s.adjustments[productID]...)
	return out
}

// merge replaces productID's rows with the scoped copy.
func (s *state) merge(productID uuid.UUID, scoped *state) {
	for id, p := range scoped.products {
		s.products[id] = p
	}
	for id, st := range scoped.stocks {
		s.stocks[id] = st
	}
	for id, it := range s.items {
		if it.ProductID == productID {
			delete(s.items, id)
		}
	}
	for id, it := range scoped.items {
		s.items[id] = it
	}
	for id, a := range s.assignments {
		if a.ProductID == productID {
			delete(s.assignments, id)
		}
	}
	for id, a := range scoped.assignments {
		s.assignments[id] = a
	}
	for pid, adj := range scoped.adjustments {
		s.adjustments[pid] = adj
	}
}

// validate enforces the checks the postgres schema declares.
func (s *state) validate() error {
	for _, st := range s.stocks {
		if st.BulkPoolCount < 0 || st.TrackedItemCount < 0 {
			return &repository.ConstraintError{
				Constraint: "chk_master_stocks_non_negative",
				Err:        fmt.Errorf("product %s: bulk=%d tracked=%d", st.ProductID, st.BulkPoolCount, st.TrackedItemCount),
			}
		}
	}

	type hold struct {
		rng          models.DateRange
		assignmentID uuid.UUID
	}
	holds := make(map[uuid.UUID][]hold)
	for _, a := range s.assignments {
		if a.IsReleased() {
			continue
		}
		for _, ai := range a.Items {
			if ai.ReleasedAt != nil {
				continue
			}
			h := hold{rng: models.DateRange{Start: ai.StartDate, End: ai.EndDate}, assignmentID: a.ID}
			for _, prev := range holds[ai.ItemID] {
				if prev.rng.Overlaps(h.rng) {
					return &repository.ConstraintError{
						Constraint: "ex_assignment_items_no_overlap",
						Err:        fmt.Errorf("item %s held by %s and %s", ai.ItemID, prev.assignmentID, h.assignmentID),
					}
				}
			}
			holds[ai.ItemID] = append(holds[ai.ItemID], h)
		}
	}
	return nil
}

func cloneItem(it models.TrackedItem) models.TrackedItem {
	if it.CurrentAssignmentID != nil {
		id := *it.CurrentAssignmentID
		it.CurrentAssignmentID = &id
	}
	return it
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneAssignment(a models.Assignment) models.Assignment {
	a.ReleasedAt = cloneTime(a.ReleasedAt)
	if a.Items != nil {
		items := make([]models.AssignmentItem, len(a.Items))
		for i, ai := range a.Items {
			ai.ReleasedAt = cloneTime(ai.ReleasedAt)
			items[i] = ai
		}
		a.Items = items
	}
	return a
}
