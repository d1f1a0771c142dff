// Package availability projects per-day capacity of a product from a loaded
// ledger snapshot. Everything here is a pure function: no I/O, no locking.
package availability

import (
	"cmp"
	"math"
	"slices"
	"time"

	"stock-ledger-service/internal/models"

	"github.com/google/uuid"
)

// Snapshot is the state availability is computed from. Assignments may
// include released ones; they are ignored.
type Snapshot struct {
	Stock       models.MasterStock
	Items       []models.TrackedItem
	Assignments []models.Assignment
}

// Conflict is an assignment covering a day, shown to schedulers for context.
type Conflict struct {
	AssignmentID uuid.UUID
	JobID        uuid.UUID
	JobNumber    string
	CustomerName string
	Kind         models.AssignmentKind
	Quantity     int32
	ItemIDs      []uuid.UUID
}

type Day struct {
	Date             time.Time
	TotalAvailable   int32
	BulkAvailable    int32
	TrackedAvailable int32
	BulkReserved     int32
	TrackedReserved  int32
	Conflicts        []Conflict
}

// Compute returns one Day per calendar day of r, in order.
func Compute(s Snapshot, r models.DateRange) []Day {
	n := r.Days()
	if n <= 0 {
		return nil
	}

	days := make([]Day, n)
	for i := range days {
		days[i].Date = models.Day(r.Start).AddDate(0, 0, i)
		days[i].Conflicts = []Conflict{}
	}

	usable, usableTotal := usableItems(s)
	bulkReserved := BulkReservedByDay(s.Assignments, r)
	held := make([]map[uuid.UUID]struct{}, n)

	for _, a := range s.Assignments {
		lo, hi, ok := clip(a, r)
		if !ok {
			continue
		}
		c := conflictOf(a)
		ids, tracked := a.TrackedItemIDs()
		for i := lo; i <= hi; i++ {
			days[i].Conflicts = append(days[i].Conflicts, c)
			if !tracked {
				continue
			}
			for _, id := range ids {
				if _, ok := usable[id]; !ok {
					continue
				}
				if held[i] == nil {
					held[i] = make(map[uuid.UUID]struct{})
				}
				held[i][id] = struct{}{}
			}
		}
	}

	bulk := s.Stock.BulkPoolCount
	for i := range days {
		d := &days[i]
		d.BulkReserved = clamp32(bulkReserved[i])
		d.BulkAvailable = clamp32(int64(bulk) - bulkReserved[i])
		d.TrackedReserved = int32(len(held[i]))
		d.TrackedAvailable = max(0, usableTotal-d.TrackedReserved)
		d.TotalAvailable = clamp32(int64(d.BulkAvailable) + int64(d.TrackedAvailable))
	}
	return days
}

// clamp32 narrows a non-negative count to int32, saturating at the bounds.
func clamp32(v int64) int32 {
	return int32(min(max(v, 0), math.MaxInt32))
}

// usableItems returns the ids of items that count towards tracked capacity
// and the capacity itself: tracked_item_count minus items in maintenance.
func usableItems(s Snapshot) (map[uuid.UUID]struct{}, int32) {
	usable := make(map[uuid.UUID]struct{}, len(s.Items))
	var maintenance int32
	for _, it := range s.Items {
		switch {
		case it.Status.Usable():
			usable[it.ID] = struct{}{}
		case it.Status == models.ItemMaintenance:
			maintenance++
		}
	}
	return usable, max(0, s.Stock.TrackedItemCount-maintenance)
}

// clip returns the day indexes of r covered by an active assignment.
func clip(a models.Assignment, r models.DateRange) (int, int, bool) {
	if a.IsReleased() || !a.Range().Overlaps(r) {
		return 0, 0, false
	}
	lo := max(r.Index(a.StartDate), 0)
	hi := min(r.Index(a.EndDate), r.Days()-1)
	return lo, hi, lo <= hi
}

func conflictOf(a models.Assignment) Conflict {
	c := Conflict{
		AssignmentID: a.ID,
		JobID:        a.JobID,
		JobNumber:    a.JobNumber,
		CustomerName: a.CustomerName,
		Kind:         a.Kind,
	}
	if q, ok := a.Bulk(); ok {
		c.Quantity = q
	}
	if ids, ok := a.TrackedItemIDs(); ok {
		c.ItemIDs = ids
	}
	return c
}

// BulkReservedByDay sums active bulk quantities per day of r. Sums are int64
// so that they never wrap whatever the stored quantities are.
func BulkReservedByDay(assignments []models.Assignment, r models.DateRange) []int64 {
	n := r.Days()
	if n <= 0 {
		return nil
	}
	diff := make([]int64, n+1)
	for _, a := range assignments {
		q, ok := a.Bulk()
		if !ok {
			continue
		}
		lo, hi, ok := clip(a, r)
		if !ok {
			continue
		}
		diff[lo] += int64(q)
		diff[hi+1] -= int64(q)
	}

	out := make([]int64, n)
	var run int64
	for i := range out {
		run += diff[i]
		out[i] = run
	}
	return out
}

// MaxBulkReservedFrom is the peak bulk reservation on any day from `from`
// onwards. Removing bulk capacity below it would oversell.
func MaxBulkReservedFrom(assignments []models.Assignment, from time.Time) int64 {
	from = models.Day(from)

	type event struct {
		at    time.Time
		delta int64
	}
	var events []event
	for _, a := range assignments {
		q, ok := a.Bulk()
		if !ok || a.IsReleased() {
			continue
		}
		end := models.Day(a.EndDate)
		if end.Before(from) {
			continue
		}
		start := models.Day(a.StartDate)
		if start.Before(from) {
			start = from
		}
		events = append(events,
			event{at: start, delta: int64(q)},
			event{at: end.AddDate(0, 0, 1), delta: -int64(q)},
		)
	}

	// на одну дату окончания обрабатываются раньше начал
	slices.SortFunc(events, func(x, y event) int {
		if c := x.at.Compare(y.at); c != 0 {
			return c
		}
		return cmp.Compare(x.delta, y.delta)
	})

	var run, peak int64
	for _, e := range events {
		run += e.delta
		peak = max(peak, run)
	}
	return peak
}

// ItemHolds returns the active assignments that hold itemID on any day of r.
func ItemHolds(assignments []models.Assignment, itemID uuid.UUID, r models.DateRange) []models.Assignment {
	var out []models.Assignment
	for _, a := range assignments {
		if a.IsReleased() || !a.Range().Overlaps(r) {
			continue
		}
		ids, ok := a.TrackedItemIDs()
		if ok && slices.Contains(ids, itemID) {
			out = append(out, a)
		}
	}
	return out
}
