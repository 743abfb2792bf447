package e2e

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verge-graph/verge/pkg/events"
	"github.com/verge-graph/verge/pkg/idgen"
	"github.com/verge-graph/verge/pkg/logging"
	"github.com/verge-graph/verge/pkg/metrics"
	"github.com/verge-graph/verge/pkg/persistence"
	"github.com/verge-graph/verge/pkg/propindex"
	"github.com/verge-graph/verge/pkg/txn"
)

// kernel bundles a fully wired transaction kernel for end-to-end tests
type kernel struct {
	ids        *idgen.Generator
	manager    *txn.Manager
	dispatcher *persistence.Dispatcher
	source     *persistence.MemorySource
	broker     *persistence.Broker
	bus        *events.Bus
	index      *propindex.Registry
	store      *propindex.FileIndexStore
}

func startKernel(t *testing.T) *kernel {
	t.Helper()

	log := logging.NewNopLogger()
	registry := metrics.NewRegistry()
	ids := idgen.NewGenerator()
	bus := events.NewBus()
	t.Cleanup(bus.Shutdown)

	manager := txn.NewManager(ids, log)

	source := persistence.NewMemorySource("memory")
	dispatcher := persistence.NewDispatcher()
	dispatcher.SetActiveSource(source)
	broker := persistence.NewBroker(dispatcher, persistence.DefaultStripes, log, registry)

	store := propindex.NewFileIndexStore(filepath.Join(t.TempDir(), "index.dat"))
	index := propindex.NewRegistry(ids, store, bus, log, registry)

	return &kernel{
		ids:        ids,
		manager:    manager,
		dispatcher: dispatcher,
		source:     source,
		broker:     broker,
		bus:        bus,
		index:      index,
		store:      store,
	}
}

// TestTransactionLifecycleWorkflow walks a transaction through acquire,
// reuse, commit, and connection teardown.
func TestTransactionLifecycleWorkflow(t *testing.T) {
	k := startKernel(t)

	t.Log("Step 1: Begin a transaction")
	ctx, tx, err := k.manager.Begin(context.Background())
	require.NoError(t, err)
	require.Equal(t, txn.StatusActive, tx.Status())

	t.Log("Step 2: Acquire a connection, enlisting it in the transaction")
	conn, err := k.broker.AcquireConnection(ctx)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, 1, k.broker.LiveConnections(tx))

	t.Log("Step 3: A second acquire reuses the same connection")
	again, err := k.broker.AcquireConnection(ctx)
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.Equal(t, 1, k.source.Created())

	t.Log("Step 4: Commit drives the enlisted resource and destroys the connection")
	require.NoError(t, k.manager.Commit(ctx, tx))
	assert.Equal(t, txn.StatusCommitted, tx.Status())

	mc := conn.(*persistence.MemoryConnection)
	assert.True(t, mc.Committed(), "resource should be committed")
	assert.False(t, mc.RolledBack())
	assert.True(t, mc.Destroyed(), "connection should be destroyed after completion")
	assert.Equal(t, 0, k.broker.LiveConnections(tx))

	t.Log("Step 5: The ended transaction refuses further work")
	_, err = k.broker.AcquireConnection(ctx)
	assert.ErrorIs(t, err, txn.ErrTransactionEnded)
}

// TestRollbackWorkflow verifies rollback tears the connection down without
// committing the resource.
func TestRollbackWorkflow(t *testing.T) {
	k := startKernel(t)

	ctx, tx, err := k.manager.Begin(context.Background())
	require.NoError(t, err)

	conn, err := k.broker.AcquireConnection(ctx)
	require.NoError(t, err)

	require.NoError(t, k.manager.Rollback(ctx, tx))

	mc := conn.(*persistence.MemoryConnection)
	assert.False(t, mc.Committed())
	assert.True(t, mc.RolledBack())
	assert.True(t, mc.Destroyed())
}

// TestPropertyIndexWorkflow covers create, both lookup directions,
// re-active event delivery, and reload from the store file.
func TestPropertyIndexWorkflow(t *testing.T) {
	k := startKernel(t)

	sub, err := k.bus.Subscribe(context.Background(), events.PropertyIndexCreate)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	t.Log("Step 1: Create an index inside a transaction")
	ctx, tx, err := k.manager.Begin(context.Background())
	require.NoError(t, err)

	created, err := k.index.Create(ctx, "color")
	require.NoError(t, err)
	assert.Equal(t, "color", created.Key())
	assert.NotZero(t, created.ID())

	t.Log("Step 2: Both lookup directions resolve the new index")
	byKey := k.index.LookupByKey("color")
	require.Len(t, byKey, 1)
	assert.Same(t, created, byKey[0])

	byID, err := k.index.LookupByID(ctx, created.ID())
	require.NoError(t, err)
	assert.Same(t, created, byID)

	t.Log("Step 3: The re-active event is observable")
	select {
	case payload := <-sub.Channel():
		announced, ok := payload.(*propindex.PropertyIndex)
		require.True(t, ok, "payload should be the created index")
		assert.Same(t, created, announced)
	case <-time.After(time.Second):
		t.Fatal("re-active create event never arrived")
	}

	require.NoError(t, k.manager.Commit(ctx, tx))

	t.Log("Step 4: A fresh registry resolves the id from the store file")
	fresh := propindex.NewRegistry(idgen.NewGenerator(), k.store, events.NewBus(), logging.NewNopLogger(), nil)
	reloaded, err := fresh.LookupByID(context.Background(), created.ID())
	require.NoError(t, err)
	assert.Equal(t, "color", reloaded.Key())
	assert.Equal(t, created.ID(), reloaded.ID())
}

// TestVetoedCreateMarksTransactionRollbackOnly verifies a rejected
// pro-active create poisons the surrounding transaction.
func TestVetoedCreateMarksTransactionRollbackOnly(t *testing.T) {
	k := startKernel(t)

	k.bus.RegisterValidator(events.PropertyIndexCreate,
		events.ValidatorFunc(func(events.Kind, any) bool { return false }))

	ctx, tx, err := k.manager.Begin(context.Background())
	require.NoError(t, err)

	_, err = k.index.Create(ctx, "forbidden")
	require.ErrorIs(t, err, propindex.ErrCreateRejected)
	assert.True(t, tx.IsRollbackOnly())
	assert.Empty(t, k.index.LookupByKey("forbidden"))

	err = k.manager.Commit(ctx, tx)
	assert.ErrorIs(t, err, txn.ErrRollbackOnly)
	assert.Equal(t, txn.StatusRolledBack, tx.Status())
}

// TestMultiSourceTransaction acquires from two sources in one transaction
// and checks both connections are torn down at commit.
func TestMultiSourceTransaction(t *testing.T) {
	k := startKernel(t)
	second := persistence.NewMemorySource("archive")

	ctx, tx, err := k.manager.Begin(context.Background())
	require.NoError(t, err)

	first, err := k.broker.AcquireConnection(ctx)
	require.NoError(t, err)

	k.dispatcher.SetActiveSource(second)
	other, err := k.broker.AcquireConnection(ctx)
	require.NoError(t, err)
	require.NotSame(t, first, other)
	assert.Equal(t, 2, k.broker.LiveConnections(tx))

	require.NoError(t, k.manager.Commit(ctx, tx))

	assert.True(t, first.(*persistence.MemoryConnection).Destroyed())
	assert.True(t, other.(*persistence.MemoryConnection).Destroyed())
}
