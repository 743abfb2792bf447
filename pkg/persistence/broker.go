package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/verge-graph/verge/pkg/logging"
	"github.com/verge-graph/verge/pkg/metrics"
	"github.com/verge-graph/verge/pkg/txn"
)

// DefaultStripes is the default number of lock stripes in the broker's
// transaction map
const DefaultStripes = 16

// Broker maps an active transaction to the single resource connection it
// uses per backing store. Connections are created on first request,
// enlisted with the transaction, delisted by the before-completion hook,
// and destroyed by the after-completion hook.
//
// The transaction map is striped by transaction id so that acquisitions in
// different transactions do not contend on one lock. Within a stripe,
// connection creation runs under the lock: the read-then-insert sequence
// must be atomic per transaction, even when creation performs I/O.
type Broker struct {
	dispatcher *Dispatcher
	log        logging.Logger
	metrics    *metrics.Registry
	shards     []brokerShard
}

type brokerShard struct {
	mu sync.Mutex
	// txID -> source name -> connection
	conns map[uint64]map[string]ResourceConnection
	// transactions whose completion hook is already registered
	registered map[uint64]bool
}

// NewBroker creates a broker. stripes <= 0 selects DefaultStripes.
// The metrics registry may be nil.
func NewBroker(dispatcher *Dispatcher, stripes int, log logging.Logger, m *metrics.Registry) *Broker {
	if stripes <= 0 {
		stripes = DefaultStripes
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	shards := make([]brokerShard, stripes)
	for i := range shards {
		shards[i].conns = make(map[uint64]map[string]ResourceConnection)
		shards[i].registered = make(map[uint64]bool)
	}

	return &Broker{
		dispatcher: dispatcher,
		log:        log.With(logging.Component("broker")),
		metrics:    m,
		shards:     shards,
	}
}

func (b *Broker) shard(txID uint64) *brokerShard {
	return &b.shards[txID%uint64(len(b.shards))]
}

// AcquireConnection returns the connection the ambient transaction uses for
// the currently active source, creating and enlisting it on first request.
// Never returns nil on success.
func (b *Broker) AcquireConnection(ctx context.Context) (ResourceConnection, error) {
	start := time.Now()

	tx, err := txn.Required(ctx)
	if err != nil {
		return nil, err
	}

	source, err := b.dispatcher.ActiveSource()
	if err != nil {
		return nil, acquisitionError("dispatch", "", tx.ID(), err)
	}

	sh := b.shard(tx.ID())
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if conn, ok := sh.conns[tx.ID()][source.Name()]; ok {
		b.recordAcquisition(source.Name(), metrics.StatusReused, start)
		return conn, nil
	}

	conn, err := source.CreateConnection(ctx)
	if err != nil {
		b.recordAcquisition(source.Name(), metrics.StatusFailed, start)
		return nil, acquisitionError("create", source.Name(), tx.ID(), err)
	}

	enlisted, err := tx.EnlistResource(conn.Resource())
	if err != nil || !enlisted {
		b.discard(conn, tx.ID())
		b.recordAcquisition(source.Name(), metrics.StatusFailed, start)
		if err == nil {
			err = ErrEnlistRefused
		}
		return nil, acquisitionError("enlist", source.Name(), tx.ID(), err)
	}

	if !sh.registered[tx.ID()] {
		if err := tx.RegisterSynchronization(&brokerSync{broker: b, tx: tx}); err != nil {
			tx.DelistResource(conn.Resource())
			b.discard(conn, tx.ID())
			b.recordAcquisition(source.Name(), metrics.StatusFailed, start)
			return nil, acquisitionError("register_hook", source.Name(), tx.ID(), err)
		}
		sh.registered[tx.ID()] = true
	}

	if sh.conns[tx.ID()] == nil {
		sh.conns[tx.ID()] = make(map[string]ResourceConnection)
	}
	sh.conns[tx.ID()][source.Name()] = conn

	if b.metrics != nil {
		b.metrics.ConnectionOpened()
	}
	b.recordAcquisition(source.Name(), metrics.StatusOK, start)
	b.log.Debug("connection acquired",
		logging.TxID(tx.ID()),
		logging.Source(source.Name()),
	)

	return conn, nil
}

// DelistTransaction delists every connection mapped for the transaction.
// Invoked by the before-completion hook. Failures are logged, not
// propagated: the transaction outcome is already being decided and must not
// be disrupted by a cleanup-path error.
func (b *Broker) DelistTransaction(tx txn.Transaction) {
	sh := b.shard(tx.ID())

	sh.mu.Lock()
	conns := make([]ResourceConnection, 0, len(sh.conns[tx.ID()]))
	for _, conn := range sh.conns[tx.ID()] {
		conns = append(conns, conn)
	}
	sh.mu.Unlock()

	for _, conn := range conns {
		if err := tx.DelistResource(conn.Resource()); err != nil {
			if b.metrics != nil {
				b.metrics.RecordDelistFailure()
			}
			b.log.Error("failed to delist resource from transaction",
				logging.TxID(tx.ID()),
				logging.Error(err),
			)
		}
	}
}

// ReleaseTransaction removes and destroys every connection mapped for the
// transaction. Invoked by the after-completion hook. Destroy failures are
// logged and non-fatal; the mapping is removed regardless, since the
// transaction has completed and the connection cannot be reused.
func (b *Broker) ReleaseTransaction(tx txn.Transaction) {
	sh := b.shard(tx.ID())

	sh.mu.Lock()
	conns := sh.conns[tx.ID()]
	delete(sh.conns, tx.ID())
	delete(sh.registered, tx.ID())
	sh.mu.Unlock()

	for sourceName, conn := range conns {
		if err := conn.Destroy(); err != nil {
			if b.metrics != nil {
				b.metrics.RecordDestroyFailure()
			}
			b.log.Error("unable to destroy connection, continuing anyway",
				logging.TxID(tx.ID()),
				logging.Source(sourceName),
				logging.Error(err),
			)
		}
		if b.metrics != nil {
			b.metrics.ConnectionClosed()
		}
	}
}

// LiveConnections reports how many connections the broker currently maps
// for the transaction
func (b *Broker) LiveConnections(tx txn.Transaction) int {
	sh := b.shard(tx.ID())
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.conns[tx.ID()])
}

// discard destroys a connection that never made it into the map
func (b *Broker) discard(conn ResourceConnection, txID uint64) {
	if err := conn.Destroy(); err != nil {
		b.log.Error("failed to destroy unmapped connection",
			logging.TxID(txID),
			logging.Error(err),
		)
	}
}

func (b *Broker) recordAcquisition(source, status string, start time.Time) {
	if b.metrics != nil {
		b.metrics.RecordAcquisition(source, status, time.Since(start))
	}
}

// brokerSync is the completion hook pair the broker registers once per
// transaction. Both phases are safe to invoke more than once.
type brokerSync struct {
	broker *Broker
	tx     txn.Transaction
}

func (s *brokerSync) BeforeCompletion() {
	s.broker.DelistTransaction(s.tx)
}

func (s *brokerSync) AfterCompletion(status txn.Status) {
	s.broker.ReleaseTransaction(s.tx)
}
