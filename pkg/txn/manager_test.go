package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/verge-graph/verge/pkg/idgen"
	"github.com/verge-graph/verge/pkg/logging"
)

// fakeResource records the completion calls it receives
type fakeResource struct {
	commits   int
	rollbacks int
	commitErr error
}

func (r *fakeResource) Commit(ctx context.Context) error {
	r.commits++
	return r.commitErr
}

func (r *fakeResource) Rollback(ctx context.Context) error {
	r.rollbacks++
	return nil
}

// recordingSync records hook invocations and the statuses observed
type recordingSync struct {
	beforeCalls  int
	afterCalls   int
	beforeStatus Status
	afterStatus  Status
	tx           Transaction
}

func (s *recordingSync) BeforeCompletion() {
	s.beforeCalls++
	if s.tx != nil {
		s.beforeStatus = s.tx.Status()
	}
}

func (s *recordingSync) AfterCompletion(status Status) {
	s.afterCalls++
	s.afterStatus = status
}

func newTestManager() *Manager {
	return NewManager(idgen.NewGenerator(), logging.NewNopLogger())
}

func TestBeginBindsContext(t *testing.T) {
	m := newTestManager()

	ctx, tx, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if tx.ID() == 0 {
		t.Error("transaction id should not be zero")
	}
	if tx.Status() != StatusActive {
		t.Errorf("status = %v, want active", tx.Status())
	}

	bound, err := Required(ctx)
	if err != nil {
		t.Fatalf("Required failed: %v", err)
	}
	if bound != tx {
		t.Error("context returned a different transaction")
	}
}

func TestRequiredWithoutTransaction(t *testing.T) {
	_, err := Required(context.Background())
	if !errors.Is(err, ErrNotInTransaction) {
		t.Errorf("err = %v, want ErrNotInTransaction", err)
	}
}

func TestCommitDrivesResourcesAndHooks(t *testing.T) {
	m := newTestManager()
	ctx, tx, _ := m.Begin(context.Background())

	res := &fakeResource{}
	sync := &recordingSync{tx: tx}

	if ok, err := tx.EnlistResource(res); !ok || err != nil {
		t.Fatalf("enlist: ok=%v err=%v", ok, err)
	}
	if err := tx.RegisterSynchronization(sync); err != nil {
		t.Fatalf("register synchronization: %v", err)
	}

	if err := m.Commit(ctx, tx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if res.commits != 1 {
		t.Errorf("resource commits = %d, want 1", res.commits)
	}
	if sync.beforeCalls != 1 || sync.afterCalls != 1 {
		t.Errorf("hook calls = %d/%d, want 1/1", sync.beforeCalls, sync.afterCalls)
	}
	if sync.beforeStatus != StatusCompleting {
		t.Errorf("status during before hook = %v, want completing", sync.beforeStatus)
	}
	if sync.afterStatus != StatusCommitted {
		t.Errorf("status in after hook = %v, want committed", sync.afterStatus)
	}
	if tx.Status() != StatusCommitted {
		t.Errorf("final status = %v, want committed", tx.Status())
	}
}

func TestCommitRollbackOnlyTransaction(t *testing.T) {
	m := newTestManager()
	ctx, tx, _ := m.Begin(context.Background())

	res := &fakeResource{}
	sync := &recordingSync{}
	tx.EnlistResource(res)
	tx.RegisterSynchronization(sync)
	tx.SetRollbackOnly()

	err := m.Commit(ctx, tx)
	if !errors.Is(err, ErrRollbackOnly) {
		t.Fatalf("err = %v, want ErrRollbackOnly", err)
	}
	if res.commits != 0 {
		t.Errorf("resource commits = %d, want 0", res.commits)
	}
	if res.rollbacks != 1 {
		t.Errorf("resource rollbacks = %d, want 1", res.rollbacks)
	}
	if sync.afterStatus != StatusRolledBack {
		t.Errorf("after hook status = %v, want rolled_back", sync.afterStatus)
	}
}

func TestRollback(t *testing.T) {
	m := newTestManager()
	ctx, tx, _ := m.Begin(context.Background())

	res := &fakeResource{}
	tx.EnlistResource(res)

	if err := m.Rollback(ctx, tx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if res.rollbacks != 1 {
		t.Errorf("resource rollbacks = %d, want 1", res.rollbacks)
	}
	if tx.Status() != StatusRolledBack {
		t.Errorf("status = %v, want rolled_back", tx.Status())
	}
}

func TestCompleteTwiceFails(t *testing.T) {
	m := newTestManager()
	ctx, tx, _ := m.Begin(context.Background())

	if err := m.Commit(ctx, tx); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := m.Commit(ctx, tx); !errors.Is(err, ErrTransactionEnded) {
		t.Errorf("second commit err = %v, want ErrTransactionEnded", err)
	}
	if err := m.Rollback(ctx, tx); !errors.Is(err, ErrTransactionEnded) {
		t.Errorf("rollback after commit err = %v, want ErrTransactionEnded", err)
	}
}

func TestResourceCommitFailureRollsBackRemaining(t *testing.T) {
	m := newTestManager()
	ctx, tx, _ := m.Begin(context.Background())

	bad := &fakeResource{commitErr: errors.New("disk full")}
	after := &fakeResource{}
	tx.EnlistResource(bad)
	tx.EnlistResource(after)

	err := m.Commit(ctx, tx)
	if err == nil {
		t.Fatal("commit should fail")
	}
	if after.commits != 0 {
		t.Errorf("later resource was committed after earlier failure")
	}
	if after.rollbacks != 1 {
		t.Errorf("later resource rollbacks = %d, want 1", after.rollbacks)
	}
	if tx.Status() != StatusRolledBack {
		t.Errorf("status = %v, want rolled_back", tx.Status())
	}
}

func TestEnlistSameResourceTwice(t *testing.T) {
	m := newTestManager()
	ctx, tx, _ := m.Begin(context.Background())

	res := &fakeResource{}
	tx.EnlistResource(res)
	if ok, err := tx.EnlistResource(res); !ok || err != nil {
		t.Fatalf("re-enlist: ok=%v err=%v", ok, err)
	}

	if err := m.Commit(ctx, tx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.commits != 1 {
		t.Errorf("resource commits = %d, want 1 (must not be driven twice)", res.commits)
	}
}

func TestEnlistOnRollbackOnly(t *testing.T) {
	m := newTestManager()
	_, tx, _ := m.Begin(context.Background())

	tx.SetRollbackOnly()
	ok, err := tx.EnlistResource(&fakeResource{})
	if ok {
		t.Error("enlist on rollback-only transaction should be refused")
	}
	if !errors.Is(err, ErrRollbackOnly) {
		t.Errorf("err = %v, want ErrRollbackOnly", err)
	}
}

func TestDelistRemovesResource(t *testing.T) {
	m := newTestManager()
	ctx, tx, _ := m.Begin(context.Background())

	res := &fakeResource{}
	tx.EnlistResource(res)
	if err := tx.DelistResource(res); err != nil {
		t.Fatalf("delist: %v", err)
	}

	if err := m.Commit(ctx, tx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.commits != 0 {
		t.Errorf("delisted resource was still committed")
	}
}
