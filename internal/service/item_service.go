package service

import (
	"context"
	"fmt"
	"time"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/producer"
	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransitionItem applies a manual status change to a tracked item. Moving an
// item into RESERVED is reserved for the coordinator and is rejected here.
func (s *ledgerService) TransitionItem(ctx context.Context, itemID uuid.UUID, to models.ItemStatus, reason string) (*models.TrackedItem, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}

	it, err := s.repo.Items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, ErrItemNotFound
	}
	productID := it.ProductID

	var (
		out      models.TrackedItem
		from     models.ItemStatus
		adj      *models.StockAdjustment
		released []models.Assignment
	)
	err = s.inProductTx(ctx, "transition_item", productID, func(tx *repository.Repository) error {
		adj, released = nil, nil

		cur, err := tx.Items.GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrItemNotFound
		}
		from = cur.Status

		next, err := models.Transition(cur.Status, to, models.OriginManual)
		if err != nil {
			return err
		}
		now := s.now()

		switch next {
		case models.ItemReturned:
			if cur.CurrentAssignmentID != nil {
				a, err := releaseItemHold(ctx, tx, *cur.CurrentAssignmentID, cur.ID, now)
				if err != nil {
					return err
				}
				if a != nil {
					released = append(released, *a)
				}
			}
			if err := pointAtNextHold(ctx, tx, cur); err != nil {
				return err
			}

		case models.ItemAvailable:
			if err := pointAtNextHold(ctx, tx, cur); err != nil {
				return err
			}
			// у единицы есть будущая бронь
			if cur.CurrentAssignmentID != nil {
				if next, err = models.Transition(next, models.ItemReserved, models.OriginReservation); err != nil {
					return err
				}
			}

		case models.ItemRetired:
			holds, err := tx.Assignments.ListActiveByItem(ctx, cur.ID)
			if err != nil {
				return err
			}
			for _, h := range holds {
				a, err := releaseItemHold(ctx, tx, h.ID, cur.ID, now)
				if err != nil {
					return err
				}
				if a != nil {
					released = append(released, *a)
				}
			}
			cur.CurrentAssignmentID = nil
		}

		cur.Status = next
		if err := tx.Items.Update(ctx, cur); err != nil {
			return err
		}

		if next == models.ItemRetired {
			st, err := loadStock(ctx, tx, productID)
			if err != nil {
				return err
			}
			st.TrackedItemCount--
			ref := cur.ID
			if reason == "" {
				reason = "write-off " + cur.SerialNumber
			}
			adj, err = s.commitStock(ctx, tx, st, models.OpRetireTracked, 0, -1, reason, &ref)
			if err != nil {
				return err
			}
		}

		out = *cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Статус единицы изменён",
		zap.String("item_id", itemID.String()),
		zap.String("serial", out.SerialNumber),
		zap.String("from", string(from)),
		zap.String("to", string(out.Status)),
	)

	now := s.now()
	id := out.ID
	events := []producer.LedgerEvent{{
		Type:       producer.EventItemStatusChanged,
		ProductID:  productID,
		OccurredAt: now,
		Actor:      actorOf(ctx),
		ItemID:     &id,
		Status:     string(out.Status),
		Reason:     reason,
	}}
	if adj != nil {
		events = append(events, stockEvent(*adj, now))
	}
	for _, a := range released {
		events = append(events, assignmentEvent(producer.EventAssignmentReleased, a, actorOf(ctx), now))
	}
	s.afterCommit(ctx, productID, events...)
	return &out, nil
}

// releaseItemHold drops one item's hold and releases the assignment once no
// item is held by it. The returned assignment is non-nil only in that case.
func releaseItemHold(ctx context.Context, tx *repository.Repository, assignmentID, itemID uuid.UUID, at time.Time) (*models.Assignment, error) {
	ok, err := tx.Assignments.ReleaseItem(ctx, assignmentID, itemID, at)
	if err != nil || !ok {
		return nil, err
	}

	a, err := tx.Assignments.GetByID(ctx, assignmentID)
	if err != nil || a == nil || a.IsReleased() {
		return nil, err
	}
	if ids, _ := a.TrackedItemIDs(); len(ids) > 0 {
		return nil, nil
	}

	changed, err := tx.Assignments.MarkReleased(ctx, assignmentID, at)
	if err != nil || !changed {
		return nil, err
	}
	a.ReleasedAt = &at
	return a, nil
}

// pointAtNextHold sets CurrentAssignmentID to the earliest remaining hold of
// the item, or clears it.
func pointAtNextHold(ctx context.Context, tx *repository.Repository, it *models.TrackedItem) error {
	holds, err := tx.Assignments.ListActiveByItem(ctx, it.ID)
	if err != nil {
		return err
	}
	if len(holds) == 0 {
		it.CurrentAssignmentID = nil
		return nil
	}
	id := holds[0].ID
	it.CurrentAssignmentID = &id
	return nil
}
