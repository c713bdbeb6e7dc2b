package ledger

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// One Ledger per account for the whole process. Every mutation of an
// account's progress goes through the ledger returned by Get.
// ══════════════════════════════════════════════════════════════════════════════

// Registry creates and caches ledgers.
type Registry struct {
	repo      progress.Repository
	publisher shared.EventPublisher
	config    Config
	log       *logger.Logger

	mu      sync.Mutex
	ledgers map[shared.AccountID]*Ledger
	loading map[shared.AccountID]*loadCall
	closed  bool
}

// loadCall lets concurrent Get calls for one account share a single load.
type loadCall struct {
	done   chan struct{}
	ledger *Ledger
	err    error
}

// NewRegistry creates a registry over the progress repository.
func NewRegistry(repo progress.Repository, publisher shared.EventPublisher, config Config) *Registry {
	config = config.withDefaults()
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &Registry{
		repo:      repo,
		publisher: publisher,
		config:    config,
		log:       config.Logger.With(logger.Component("ledger_registry")),
		ledgers:   make(map[shared.AccountID]*Ledger),
		loading:   make(map[shared.AccountID]*loadCall),
	}
}

// Get returns the account's ledger, loading it on first use.
// An account that never saved anything starts from all-zero defaults,
// which are written to the store right away.
func (r *Registry) Get(ctx context.Context, account shared.AccountID) (*Ledger, error) {
	if err := account.Require(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if l, ok := r.ledgers[account]; ok {
		r.mu.Unlock()
		return l, nil
	}
	if call, ok := r.loading[account]; ok {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.ledger, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &loadCall{done: make(chan struct{})}
	r.loading[account] = call
	r.mu.Unlock()

	call.ledger, call.err = r.open(ctx, account)

	r.mu.Lock()
	delete(r.loading, account)
	if call.err == nil {
		if r.closed {
			call.err = ErrRegistryClosed
			go call.ledger.Close(context.Background())
			call.ledger = nil
		} else {
			r.ledgers[account] = call.ledger
			r.config.Metrics.LedgerOpened()
		}
	}
	r.mu.Unlock()
	close(call.done)

	return call.ledger, call.err
}

func (r *Registry) open(ctx context.Context, account shared.AccountID) (*Ledger, error) {
	stats, err := r.repo.Load(ctx, account)
	fresh := false
	switch {
	case err == nil:
	case shared.IsNotFound(err):
		stats = progress.Defaults()
		fresh = true
	default:
		return nil, shared.PersistenceError("ledger", "Load", err)
	}

	l := New(account, stats, r.repo, r.publisher, r.config)
	if fresh {
		l.mu.Lock()
		l.enqueueLocked(syncJob{op: OpInitialize, stats: stats})
		l.mu.Unlock()
		r.log.Info("ledger initialized with defaults", logger.AccountID(account.String()))
	}
	return l, nil
}

// Flush waits for the pending writes of every open ledger.
func (r *Registry) Flush(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range r.snapshot() {
		l := l
		g.Go(func() error { return l.Flush(ctx) })
	}
	return g.Wait()
}

// Close drains and stops every ledger. Get fails afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	ledgers := r.snapshot()

	var g errgroup.Group
	for _, l := range ledgers {
		l := l
		g.Go(func() error {
			if err := l.Close(ctx); err != nil {
				return fmt.Errorf("close ledger %s: %w", l.Account(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	r.mu.Lock()
	for account := range r.ledgers {
		delete(r.ledgers, account)
		r.config.Metrics.LedgerClosed()
	}
	r.mu.Unlock()

	r.log.Info("ledger registry closed", logger.Int("ledgers", len(ledgers)))
	return err
}

// Accounts returns the accounts with an open ledger.
func (r *Registry) Accounts() []shared.AccountID {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]shared.AccountID, 0, len(r.ledgers))
	for account := range r.ledgers {
		out = append(out, account)
	}
	return out
}

func (r *Registry) snapshot() []*Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Ledger, 0, len(r.ledgers))
	for _, l := range r.ledgers {
		out = append(out, l)
	}
	return out
}

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = shared.NewDomainError("ledger", "Get", shared.ErrClosed, "ledger registry is closed")
