package service

import (
	"context"
	"fmt"
	"strings"

	"stock-ledger-service/internal/availability"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/producer"
	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *ledgerService) validateReserve(in ReserveInput) (models.DateRange, error) {
	if in.ProductID == uuid.Nil || in.JobID == uuid.Nil {
		return models.DateRange{}, fmt.Errorf("%w: product_id and job_id are required", ErrInvalidInput)
	}
	if in.BulkQuantity < 0 {
		return models.DateRange{}, ErrInvalidQuantity
	}
	if in.BulkQuantity > 0 {
		if err := checkQuantity(in.BulkQuantity, s.opt.MaxQuantity); err != nil {
			return models.DateRange{}, err
		}
	}
	if len(in.TrackedItemIDs) > int(s.opt.MaxBatch) {
		return models.DateRange{}, fmt.Errorf("%w: %d items exceed the per-request limit of %d", ErrInvalidQuantity, len(in.TrackedItemIDs), s.opt.MaxBatch)
	}
	if in.BulkQuantity == 0 && len(in.TrackedItemIDs) == 0 {
		return models.DateRange{}, ErrEmptyReservation
	}

	seen := make(map[uuid.UUID]struct{}, len(in.TrackedItemIDs))
	for _, id := range in.TrackedItemIDs {
		if id == uuid.Nil {
			return models.DateRange{}, fmt.Errorf("%w: empty item id", ErrInvalidQuantity)
		}
		if _, dup := seen[id]; dup {
			return models.DateRange{}, fmt.Errorf("%w: item %s requested twice", ErrInvalidQuantity, id)
		}
		seen[id] = struct{}{}
	}

	return s.validateRange(in.Range)
}

// Reserve holds bulk units and/or specific tracked items for a job. Either
// every requested hold is committed or none is.
func (s *ledgerService) Reserve(ctx context.Context, in ReserveInput) (*ReserveResult, error) {
	r, err := s.validateReserve(in)
	if err != nil {
		return nil, err
	}

	var res *ReserveResult
	err = s.inProductTx(ctx, "reserve", in.ProductID, func(tx *repository.Repository) error {
		res = nil

		p, err := tx.Products.GetByID(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if p != nil && !p.IsActive {
			return ErrInactiveProduct
		}

		st, err := loadStock(ctx, tx, in.ProductID)
		if err != nil {
			return err
		}
		overlapping, err := tx.Assignments.ListActiveOverlapping(ctx, in.ProductID, r)
		if err != nil {
			return err
		}

		if in.BulkQuantity > 0 {
			if err := checkBulkFits(overlapping, r, st.BulkPoolCount, in.BulkQuantity); err != nil {
				return err
			}
		}

		var items []models.TrackedItem
		if len(in.TrackedItemIDs) > 0 {
			if items, err = s.checkItemsFree(ctx, tx, in, r, overlapping); err != nil {
				return err
			}
		}

		now := s.now()
		base := models.Assignment{
			ProductID:    in.ProductID,
			JobID:        in.JobID,
			JobNumber:    strings.TrimSpace(in.JobNumber),
			CustomerName: strings.TrimSpace(in.CustomerName),
			StartDate:    r.Start,
			EndDate:      r.End,
			CreatedAt:    now,
		}

		created := make([]models.Assignment, 0, 2)
		if in.BulkQuantity > 0 {
			a := base
			a.ID = uuid.New()
			a.Kind = models.AssignmentBulk
			a.Quantity = in.BulkQuantity
			if err := tx.Assignments.Create(ctx, &a); err != nil {
				return err
			}
			created = append(created, a)
		}

		if len(items) > 0 {
			a := base
			a.ID = uuid.New()
			a.Kind = models.AssignmentTracked
			a.Items = make([]models.AssignmentItem, 0, len(items))
			for _, it := range items {
				a.Items = append(a.Items, models.AssignmentItem{
					AssignmentID: a.ID,
					ItemID:       it.ID,
					ProductID:    in.ProductID,
					StartDate:    r.Start,
					EndDate:      r.End,
				})
			}
			if err := tx.Assignments.Create(ctx, &a); err != nil {
				return err
			}
			if err := markReserved(ctx, tx, items, a.ID); err != nil {
				return err
			}
			created = append(created, a)
		}

		res = &ReserveResult{Assignments: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Резерв создан",
		zap.String("product_id", in.ProductID.String()),
		zap.String("job_id", in.JobID.String()),
		zap.String("range", r.String()),
		zap.Int32("bulk", in.BulkQuantity),
		zap.Int("tracked", len(in.TrackedItemIDs)),
	)

	now := s.now()
	events := make([]producer.LedgerEvent, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		events = append(events, assignmentEvent(producer.EventAssignmentCreated, a, actorOf(ctx), now))
	}
	s.afterCommit(ctx, in.ProductID, events...)
	return res, nil
}

// checkBulkFits enforces sum(bulk on D) + q <= bulk_pool_count for every day.
func checkBulkFits(overlapping []models.Assignment, r models.DateRange, bulk, q int32) error {
	for i, used := range availability.BulkReservedByDay(overlapping, r) {
		if used+int64(q) > int64(bulk) {
			return &OverbookedError{
				Date:      r.Start.AddDate(0, 0, i),
				Requested: q,
				Available: int32(max(0, int64(bulk)-used)),
			}
		}
	}
	return nil
}

func (s *ledgerService) checkItemsFree(ctx context.Context, tx *repository.Repository, in ReserveInput, r models.DateRange, overlapping []models.Assignment) ([]models.TrackedItem, error) {
	found, err := tx.Items.GetByIDs(ctx, in.TrackedItemIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.TrackedItem, len(found))
	for _, it := range found {
		byID[it.ID] = it
	}

	items := make([]models.TrackedItem, 0, len(in.TrackedItemIDs))
	for _, id := range in.TrackedItemIDs {
		it, ok := byID[id]
		if !ok || it.ProductID != in.ProductID {
			return nil, &ItemUnavailableError{ItemID: id, Reason: "not a tracked item of this product"}
		}
		if !it.Status.Usable() {
			return nil, &ItemUnavailableError{ItemID: id, Status: it.Status, Reason: "item is " + strings.ToLower(string(it.Status))}
		}
		if holds := availability.ItemHolds(overlapping, id, r); len(holds) > 0 {
			conflict := holds[0].ID
			return nil, &ItemUnavailableError{ItemID: id, Status: it.Status, ConflictID: &conflict}
		}
		items = append(items, it)
	}
	return items, nil
}

func markReserved(ctx context.Context, tx *repository.Repository, items []models.TrackedItem, assignmentID uuid.UUID) error {
	for i := range items {
		it := &items[i]
		switch {
		case it.Status == models.ItemAvailable:
			next, err := models.Transition(it.Status, models.ItemReserved, models.OriginReservation)
			if err != nil {
				return err
			}
			it.Status = next
			id := assignmentID
			it.CurrentAssignmentID = &id
		case it.CurrentAssignmentID == nil:
			id := assignmentID
			it.CurrentAssignmentID = &id
		default:
			// единица уже занята более ранним заказом, статус не меняем
			continue
		}
		if err := tx.Items.Update(ctx, it); err != nil {
			return err
		}
	}
	return nil
}

// Release frees an assignment. Releasing an already released assignment is a
// no-op and reports false.
func (s *ledgerService) Release(ctx context.Context, assignmentID uuid.UUID) (bool, error) {
	a, err := s.repo.Assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, ErrAssignmentNotFound
	}
	if a.IsReleased() {
		return false, nil
	}

	var (
		changed bool
		cur     models.Assignment
	)
	err = s.inProductTx(ctx, "release", a.ProductID, func(tx *repository.Repository) error {
		changed = false

		got, err := tx.Assignments.GetByID(ctx, assignmentID)
		if err != nil {
			return err
		}
		if got == nil {
			return ErrAssignmentNotFound
		}
		cur = *got

		now := s.now()
		ok, err := tx.Assignments.MarkReleased(ctx, assignmentID, now)
		if err != nil || !ok {
			return err
		}
		changed = true
		cur.ReleasedAt = &now

		return revertHeldItems(ctx, tx, *got)
	})
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	s.log.Info("Резерв снят",
		zap.String("assignment_id", assignmentID.String()),
		zap.String("product_id", cur.ProductID.String()),
		zap.String("job_id", cur.JobID.String()),
	)
	s.afterCommit(ctx, cur.ProductID, assignmentEvent(producer.EventAssignmentReleased, cur, actorOf(ctx), s.now()))
	return true, nil
}

// revertHeldItems moves items the released assignment was pointing at back to
// AVAILABLE, or at their next hold.
func revertHeldItems(ctx context.Context, tx *repository.Repository, a models.Assignment) error {
	ids, ok := a.TrackedItemIDs()
	if !ok || len(ids) == 0 {
		return nil
	}

	items, err := tx.Items.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range items {
		it := &items[i]
		if it.CurrentAssignmentID == nil || *it.CurrentAssignmentID != a.ID {
			continue
		}
		if err := pointAtNextHold(ctx, tx, it); err != nil {
			return err
		}
		if it.CurrentAssignmentID == nil && it.Status == models.ItemReserved {
			next, err := models.Transition(it.Status, models.ItemAvailable, models.OriginRelease)
			if err != nil {
				return err
			}
			it.Status = next
		}
		if err := tx.Items.Update(ctx, it); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseJob releases every active assignment of a cancelled job.
func (s *ledgerService) ReleaseJob(ctx context.Context, jobID uuid.UUID) (int64, error) {
	if jobID == uuid.Nil {
		return 0, fmt.Errorf("%w: job_id is required", ErrInvalidInput)
	}

	list, err := s.repo.Assignments.ListByJob(ctx, jobID)
	if err != nil {
		return 0, err
	}

	var released int64
	for _, a := range list {
		if a.IsReleased() {
			continue
		}
		ok, err := s.Release(ctx, a.ID)
		if err != nil {
			return released, err
		}
		if ok {
			released++
		}
	}
	return released, nil
}

func (s *ledgerService) GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.Assignment, error) {
	a, err := s.repo.Assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAssignmentNotFound
	}
	return a, nil
}
