package txn

import (
	"context"
	"fmt"
	"sync"

	"github.com/verge-graph/verge/pkg/idgen"
	"github.com/verge-graph/verge/pkg/logging"
)

// Manager begins transactions and drives their completion protocol:
// before-completion hooks, then resource commit/rollback, then
// after-completion hooks with the fixed outcome.
type Manager struct {
	ids *idgen.Generator
	log logging.Logger
}

// NewManager creates a transaction manager
func NewManager(ids *idgen.Generator, log logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Manager{
		ids: ids,
		log: log.With(logging.Component("txn")),
	}
}

// Begin starts a new transaction and binds it into the returned context
func (m *Manager) Begin(ctx context.Context) (context.Context, Transaction, error) {
	tx := &transaction{
		id:     m.ids.NextID(idgen.CategoryTransaction),
		status: StatusActive,
	}
	m.log.Debug("transaction started", logging.TxID(tx.id))
	return WithTransaction(ctx, tx), tx, nil
}

// Commit completes the transaction. A rollback-only transaction is rolled
// back instead and ErrRollbackOnly is returned. A resource commit failure
// rolls back the remaining resources and surfaces the failure.
func (m *Manager) Commit(ctx context.Context, tx Transaction) error {
	t, err := m.own(tx)
	if err != nil {
		return err
	}
	return m.complete(ctx, t, true)
}

// Rollback completes the transaction with a rollback outcome
func (m *Manager) Rollback(ctx context.Context, tx Transaction) error {
	t, err := m.own(tx)
	if err != nil {
		return err
	}
	return m.complete(ctx, t, false)
}

func (m *Manager) own(tx Transaction) (*transaction, error) {
	t, ok := tx.(*transaction)
	if !ok {
		return nil, fmt.Errorf("transaction %d was not started by this manager", tx.ID())
	}
	return t, nil
}

func (m *Manager) complete(ctx context.Context, t *transaction, commit bool) error {
	syncs, err := t.beginCompletion()
	if err != nil {
		return err
	}

	// Before-completion hooks run while resources are still enlisted,
	// so they can delist. Hook panics must not disturb the outcome.
	for _, s := range syncs {
		m.runBeforeHook(t, s)
	}

	rollbackOnly := t.IsRollbackOnly()
	resources := t.takeResources()

	var commitErr error
	status := StatusCommitted
	switch {
	case !commit || rollbackOnly:
		status = StatusRolledBack
		m.rollbackResources(ctx, t, resources)
	default:
		for i, r := range resources {
			if err := r.Commit(ctx); err != nil {
				commitErr = fmt.Errorf("resource commit failed in transaction %d: %w", t.id, err)
				status = StatusRolledBack
				m.rollbackResources(ctx, t, resources[i+1:])
				break
			}
		}
	}

	t.finish(status)

	for _, s := range syncs {
		m.runAfterHook(t, s, status)
	}

	m.log.Debug("transaction completed",
		logging.TxID(t.id),
		logging.String("status", status.String()),
	)

	if commitErr != nil {
		return commitErr
	}
	if commit && rollbackOnly {
		return ErrRollbackOnly
	}
	return nil
}

func (m *Manager) rollbackResources(ctx context.Context, t *transaction, resources []Resource) {
	for _, r := range resources {
		if err := r.Rollback(ctx); err != nil {
			m.log.Error("resource rollback failed",
				logging.TxID(t.id),
				logging.Error(err),
			)
		}
	}
}

func (m *Manager) runBeforeHook(t *transaction, s Synchronization) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("before-completion hook panicked",
				logging.TxID(t.id),
				logging.Any("panic", r),
			)
		}
	}()
	s.BeforeCompletion()
}

func (m *Manager) runAfterHook(t *transaction, s Synchronization, status Status) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("after-completion hook panicked",
				logging.TxID(t.id),
				logging.Any("panic", r),
			)
		}
	}()
	s.AfterCompletion(status)
}

// transaction is the Manager's Transaction implementation
type transaction struct {
	id uint64

	mu           sync.Mutex
	status       Status
	rollbackOnly bool
	resources    []Resource
	syncs        []Synchronization
}

// ID returns the transaction's unique id
func (t *transaction) ID() uint64 {
	return t.id
}

// EnlistResource adds a resource to the completion protocol
func (t *transaction) EnlistResource(r Resource) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.status == StatusCommitted || t.status == StatusRolledBack:
		return false, ErrTransactionEnded
	case t.status == StatusCompleting:
		return false, nil
	case t.rollbackOnly:
		return false, ErrRollbackOnly
	}

	for _, existing := range t.resources {
		if existing == r {
			return true, nil
		}
	}
	t.resources = append(t.resources, r)
	return true, nil
}

// DelistResource removes a previously enlisted resource
func (t *transaction) DelistResource(r Resource) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusCommitted || t.status == StatusRolledBack {
		return ErrTransactionEnded
	}

	for i, existing := range t.resources {
		if existing == r {
			t.resources = append(t.resources[:i], t.resources[i+1:]...)
			return nil
		}
	}
	return nil
}

// RegisterSynchronization adds a completion hook pair
func (t *transaction) RegisterSynchronization(s Synchronization) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusActive {
		return ErrTransactionEnded
	}
	t.syncs = append(t.syncs, s)
	return nil
}

// SetRollbackOnly marks the transaction so it cannot commit
func (t *transaction) SetRollbackOnly() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbackOnly = true
}

// IsRollbackOnly reports whether the transaction is rollback-only
func (t *transaction) IsRollbackOnly() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbackOnly
}

// Status returns the transaction's current lifecycle status
func (t *transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// beginCompletion moves the transaction into StatusCompleting and returns
// a snapshot of its synchronizations. Fails if completion already ran.
func (t *transaction) beginCompletion() ([]Synchronization, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusActive {
		return nil, ErrTransactionEnded
	}
	t.status = StatusCompleting

	syncs := make([]Synchronization, len(t.syncs))
	copy(syncs, t.syncs)
	return syncs, nil
}

// takeResources removes and returns the enlisted resources
func (t *transaction) takeResources() []Resource {
	t.mu.Lock()
	defer t.mu.Unlock()

	resources := t.resources
	t.resources = nil
	return resources
}

func (t *transaction) finish(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}
