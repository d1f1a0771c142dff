// Package memstore is an in-process ledger backend. It gives the same
// per-product isolation as the postgres backend: one writer per product,
// snapshot reads, all-or-nothing commits.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"stock-ledger-service/internal/repository"

	"github.com/google/uuid"
)

var errReadOnly = errors.New("read-only transaction")

type backend interface {
	read(fn func(s *state) error) error
	write(fn func(s *state) error) error
	// readGlobal sees every product, even inside a scoped transaction.
	readGlobal(fn func(s *state) error) error
}

type Store struct {
	mu   sync.RWMutex
	data *state

	locksMu sync.Mutex
	locks   map[uuid.UUID]chan struct{}
}

var (
	_ backend               = (*Store)(nil)
	_ backend               = (*txBackend)(nil)
	_ repository.Transactor = (*Store)(nil)
)

func New() *Store {
	return &Store{
		data:  newState(),
		locks: make(map[uuid.UUID]chan struct{}),
	}
}

// Repository returns a repository.Repository backed by the store.
func (s *Store) Repository() *repository.Repository {
	r := repositoryFor(s)
	r.Transactor = s
	return r
}

func repositoryFor(b backend) *repository.Repository {
	return &repository.Repository{
		Products:    &productRepo{b: b},
		Stocks:      &stockRepo{b: b},
		Items:       &itemRepo{b: b},
		Assignments: &assignmentRepo{b: b},
		Adjustments: &adjustmentRepo{b: b},
	}
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) readGlobal(fn func(st *state) error) error { return s.read(fn) }

func (s *Store) lockProduct(ctx context.Context, productID uuid.UUID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrTxTimeout, err)
	}

	s.locksMu.Lock()
	ch, ok := s.locks[productID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[productID] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for product %s: %v", repository.ErrTxTimeout, productID, ctx.Err())
	}
}

func (s *Store) InProductTx(ctx context.Context, productID uuid.UUID, fn func(tx *repository.Repository) error) error {
	unlock, err := s.lockProduct(ctx, productID)
	if err != nil {
		return err
	}
	defer unlock()

	var scoped *state
	err = s.read(func(st *state) error {
		if _, ok := st.stocks[productID]; !ok {
			return repository.ErrNotFound
		}
		scoped = st.scope(productID)
		return nil
	})
	if err != nil {
		return err
	}

	txRepo := repositoryFor(&txBackend{data: scoped, parent: s})
	txRepo.Transactor = repository.Nested(txRepo)
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: commit: %v", repository.ErrTxTimeout, err)
	}
	if err := scoped.validate(); err != nil {
		return err
	}

	return s.write(func(st *state) error {
		if err := checkSerials(st, productID, scoped); err != nil {
			return err
		}
		st.merge(productID, scoped)
		return nil
	})
}

func (s *Store) InSnapshot(ctx context.Context, productID uuid.UUID, fn func(tx *repository.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrTxTimeout, err)
	}

	var scoped *state
	_ = s.read(func(st *state) error {
		scoped = st.scope(productID)
		return nil
	})

	txRepo := repositoryFor(&txBackend{data: scoped, parent: s, readOnly: true})
	txRepo.Transactor = repository.Nested(txRepo)
	return fn(txRepo)
}

// checkSerials enforces global serial uniqueness that a scoped copy cannot see.
func checkSerials(global *state, productID uuid.UUID, scoped *state) error {
	taken := make(map[string]uuid.UUID)
	for _, it := range global.items {
		if it.ProductID != productID {
			taken[strings.ToLower(it.SerialNumber)] = it.ID
		}
	}
	for _, it := range scoped.items {
		if other, ok := taken[strings.ToLower(it.SerialNumber)]; ok && other != it.ID {
			return &repository.ConstraintError{
				Constraint: "tracked_items_serial_number_key",
				Err:        fmt.Errorf("serial %q already exists", it.SerialNumber),
			}
		}
	}
	return nil
}

// txBackend serves one transaction's scoped copy. Transactions are used by a
// single goroutine, so no locking is needed.
type txBackend struct {
	data     *state
	parent   *Store
	readOnly bool
}

func (b *txBackend) read(fn func(s *state) error) error { return fn(b.data) }

func (b *txBackend) write(fn func(s *state) error) error {
	if b.readOnly {
		return errReadOnly
	}
	return fn(b.data)
}

func (b *txBackend) readGlobal(fn func(s *state) error) error {
	if err := b.parent.read(fn); err != nil {
		return err
	}
	return fn(b.data)
}
