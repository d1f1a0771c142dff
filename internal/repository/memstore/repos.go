package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
)

var (
	_ repository.ProductRepo    = (*productRepo)(nil)
	_ repository.StockRepo      = (*stockRepo)(nil)
	_ repository.ItemRepo       = (*itemRepo)(nil)
	_ repository.AssignmentRepo = (*assignmentRepo)(nil)
	_ repository.AdjustmentRepo = (*adjustmentRepo)(nil)
)

func now() time.Time { return time.Now().UTC() }

type productRepo struct{ b backend }

func (r *productRepo) Create(_ context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	p.UpdatedAt = p.CreatedAt
	return r.b.write(func(s *state) error {
		for _, other := range s.products {
			if strings.EqualFold(other.SKU, p.SKU) {
				return &repository.ConstraintError{Constraint: "ux_products_sku", Err: fmt.Errorf("sku %q already exists", p.SKU)}
			}
		}
		s.products[p.ID] = *p
		if _, ok := s.stocks[p.ID]; !ok {
			s.stocks[p.ID] = models.MasterStock{ProductID: p.ID, UpdatedAt: p.CreatedAt}
		}
		return nil
	})
}

func (r *productRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	var out *models.Product
	err := r.b.readGlobal(func(s *state) error {
		if p, ok := s.products[id]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (r *productRepo) GetBySKU(_ context.Context, sku string) (*models.Product, error) {
	var out *models.Product
	err := r.b.readGlobal(func(s *state) error {
		for _, p := range s.products {
			if strings.EqualFold(p.SKU, sku) {
				out = &p
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *productRepo) List(_ context.Context, f repository.ProductListFilter) ([]models.Product, int64, error) {
	var all []models.Product
	q := strings.ToLower(strings.TrimSpace(f.Query))
	_ = r.b.read(func(s *state) error {
		for _, p := range s.products {
			if f.OnlyActive != nil && p.IsActive != *f.OnlyActive {
				continue
			}
			if q != "" && !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.SKU), q) {
				continue
			}
			all = append(all, p)
		}
		return nil
	})

	slices.SortFunc(all, func(a, b models.Product) int { return b.CreatedAt.Compare(a.CreatedAt) })
	limit, offset := repository.NormalizePage(f.Limit, f.Offset)
	return page(all, limit, offset), int64(len(all)), nil
}

type stockRepo struct{ b backend }

func (r *stockRepo) Get(_ context.Context, productID uuid.UUID) (*models.MasterStock, error) {
	var out *models.MasterStock
	err := r.b.read(func(s *state) error {
		if st, ok := s.stocks[productID]; ok {
			out = &st
		}
		return nil
	})
	return out, err
}

func (r *stockRepo) Save(_ context.Context, st *models.MasterStock) error {
	return r.b.write(func(s *state) error {
		cur, ok := s.stocks[st.ProductID]
		if !ok {
			return repository.ErrNotFound
		}
		if cur.Version != st.Version {
			return fmt.Errorf("%w: master stock %s changed since version %d", repository.ErrSerialization, st.ProductID, st.Version)
		}
		st.Version++
		st.UpdatedAt = now()
		s.stocks[st.ProductID] = *st
		return nil
	})
}

type itemRepo struct{ b backend }

func (r *itemRepo) CreateBatch(_ context.Context, items []models.TrackedItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.b.write(func(s *state) error {
		for i := range items {
			if items[i].ID == uuid.Nil {
				items[i].ID = uuid.New()
			}
			if items[i].Status == "" {
				items[i].Status = models.ItemAvailable
			}
			if items[i].CreatedAt.IsZero() {
				items[i].CreatedAt = now()
			}
			items[i].UpdatedAt = items[i].CreatedAt
			s.items[items[i].ID] = cloneItem(items[i])
		}
		return nil
	})
}

func (r *itemRepo) GetByID(_ context.Context, id uuid.UUID) (*models.TrackedItem, error) {
	var out *models.TrackedItem
	err := r.b.read(func(s *state) error {
		if it, ok := s.items[id]; ok {
			it = cloneItem(it)
			out = &it
		}
		return nil
	})
	return out, err
}

func (r *itemRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]models.TrackedItem, error) {
	list := []models.TrackedItem{}
	_ = r.b.read(func(s *state) error {
		for _, id := range ids {
			if it, ok := s.items[id]; ok {
				list = append(list, cloneItem(it))
			}
		}
		return nil
	})
	sortItems(list)
	return list, nil
}

func (r *itemRepo) ListByProduct(_ context.Context, productID uuid.UUID, status *models.ItemStatus) ([]models.TrackedItem, error) {
	var list []models.TrackedItem
	_ = r.b.read(func(s *state) error {
		for _, it := range s.items {
			if it.ProductID != productID || (status != nil && it.Status != *status) {
				continue
			}
			list = append(list, cloneItem(it))
		}
		return nil
	})
	sortItems(list)
	return list, nil
}

func (r *itemRepo) CountOwned(_ context.Context, productID uuid.UUID) (int64, error) {
	var cnt int64
	_ = r.b.read(func(s *state) error {
		for _, it := range s.items {
			if it.ProductID == productID && it.Status != models.ItemRetired {
				cnt++
			}
		}
		return nil
	})
	return cnt, nil
}

func (r *itemRepo) Update(_ context.Context, it *models.TrackedItem) error {
	return r.b.write(func(s *state) error {
		cur, ok := s.items[it.ID]
		if !ok {
			return repository.ErrNotFound
		}
		cur.Status = it.Status
		cur.CurrentAssignmentID = it.CurrentAssignmentID
		cur.UpdatedAt = now()
		s.items[it.ID] = cloneItem(cur)
		it.UpdatedAt = cur.UpdatedAt
		return nil
	})
}

func (r *itemRepo) SerialExists(_ context.Context, serials []string) ([]string, error) {
	if len(serials) == 0 {
		return nil, nil
	}
	want := make(map[string]string, len(serials))
	for _, sn := range serials {
		want[strings.ToLower(sn)] = sn
	}
	seen := make(map[string]bool)
	var found []string
	err := r.b.readGlobal(func(s *state) error {
		for _, it := range s.items {
			key := strings.ToLower(it.SerialNumber)
			if _, ok := want[key]; ok && !seen[key] {
				seen[key] = true
				found = append(found, it.SerialNumber)
			}
		}
		return nil
	})
	return found, err
}

func sortItems(list []models.TrackedItem) {
	slices.SortFunc(list, func(a, b models.TrackedItem) int { return strings.Compare(a.SerialNumber, b.SerialNumber) })
}

type assignmentRepo struct{ b backend }

func (r *assignmentRepo) Create(_ context.Context, a *models.Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now()
	}
	for i := range a.Items {
		a.Items[i].AssignmentID = a.ID
	}
	return r.b.write(func(s *state) error {
		if _, ok := s.assignments[a.ID]; ok {
			return fmt.Errorf("assignment %s already exists", a.ID)
		}
		s.assignments[a.ID] = cloneAssignment(*a)
		return nil
	})
}

func (r *assignmentRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Assignment, error) {
	var out *models.Assignment
	err := r.b.readGlobal(func(s *state) error {
		if a, ok := s.assignments[id]; ok {
			a = cloneAssignment(a)
			out = &a
		}
		return nil
	})
	return out, err
}

func (r *assignmentRepo) filter(keep func(a models.Assignment) bool) []models.Assignment {
	var list []models.Assignment
	_ = r.b.read(func(s *state) error {
		for _, a := range s.assignments {
			if keep(a) {
				list = append(list, cloneAssignment(a))
			}
		}
		return nil
	})
	slices.SortFunc(list, func(a, b models.Assignment) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return list
}

func (r *assignmentRepo) ListActiveOverlapping(_ context.Context, productID uuid.UUID, rng models.DateRange) ([]models.Assignment, error) {
	return r.filter(func(a models.Assignment) bool {
		return a.ProductID == productID && !a.IsReleased() && a.Range().Overlaps(rng)
	}), nil
}

func (r *assignmentRepo) ListActiveFrom(_ context.Context, productID uuid.UUID, from time.Time) ([]models.Assignment, error) {
	from = models.Day(from)
	return r.filter(func(a models.Assignment) bool {
		return a.ProductID == productID && !a.IsReleased() && !models.Day(a.EndDate).Before(from)
	}), nil
}

func (r *assignmentRepo) ListActiveByItem(_ context.Context, itemID uuid.UUID) ([]models.Assignment, error) {
	return r.filter(func(a models.Assignment) bool {
		if a.IsReleased() {
			return false
		}
		for _, ai := range a.Items {
			if ai.ItemID == itemID && ai.ReleasedAt == nil {
				return true
			}
		}
		return false
	}), nil
}

func (r *assignmentRepo) ListByJob(_ context.Context, jobID uuid.UUID) ([]models.Assignment, error) {
	list := r.filter(func(a models.Assignment) bool { return a.JobID == jobID })
	slices.SortFunc(list, func(a, b models.Assignment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return list, nil
}

func (r *assignmentRepo) MarkReleased(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	var changed bool
	err := r.b.write(func(s *state) error {
		a, ok := s.assignments[id]
		if !ok || a.IsReleased() {
			return nil
		}
		a = cloneAssignment(a)
		a.ReleasedAt = &at
		for i := range a.Items {
			if a.Items[i].ReleasedAt == nil {
				t := at
				a.Items[i].ReleasedAt = &t
			}
		}
		s.assignments[id] = a
		changed = true
		return nil
	})
	return changed, err
}

func (r *assignmentRepo) ReleaseItem(_ context.Context, assignmentID, itemID uuid.UUID, at time.Time) (bool, error) {
	var changed bool
	err := r.b.write(func(s *state) error {
		a, ok := s.assignments[assignmentID]
		if !ok {
			return nil
		}
		a = cloneAssignment(a)
		for i := range a.Items {
			if a.Items[i].ItemID == itemID && a.Items[i].ReleasedAt == nil {
				a.Items[i].ReleasedAt = &at
				changed = true
			}
		}
		s.assignments[assignmentID] = a
		return nil
	})
	return changed, err
}

type adjustmentRepo struct{ b backend }

func (r *adjustmentRepo) Append(_ context.Context, adj *models.StockAdjustment) error {
	if adj.ID == uuid.Nil {
		adj.ID = uuid.New()
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = now()
	}
	if adj.Actor == "" {
		adj.Actor = "system"
	}
	if adj.Delta != adj.BulkDelta+adj.TrackedDelta {
		return &repository.ConstraintError{
			Constraint: "chk_stock_adjustments_split",
			Err:        fmt.Errorf("delta %d != %d + %d", adj.Delta, adj.BulkDelta, adj.TrackedDelta),
		}
	}
	return r.b.write(func(s *state) error {
		s.adjustments[adj.ProductID] = append(s.adjustments[adj.ProductID], *adj)
		return nil
	})
}

func (r *adjustmentRepo) ListByProduct(_ context.Context, productID uuid.UUID, limit, offset int) ([]models.StockAdjustment, int64, error) {
	var all []models.StockAdjustment
	_ = r.b.read(func(s *state) error {
		src := s.adjustments[productID]
		all = make([]models.StockAdjustment, 0, len(src))
		for i := len(src) - 1; i >= 0; i-- {
			all = append(all, src[i])
		}
		return nil
	})
	limit, offset = repository.NormalizePage(limit, offset)
	return page(all, limit, offset), int64(len(all)), nil
}

func (r *adjustmentRepo) SumDeltas(_ context.Context, productID uuid.UUID) (int64, error) {
	var sum int64
	_ = r.b.read(func(s *state) error {
		for _, adj := range s.adjustments[productID] {
			sum += int64(adj.Delta)
		}
		return nil
	})
	return sum, nil
}

func page[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return []T{}
	}
	end := min(offset+limit, len(list))
	return list[offset:end]
}
