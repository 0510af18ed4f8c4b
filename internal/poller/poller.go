// Package poller drives the polling cycle: resolve the pool, read its state,
// fetch new transfers, classify and aggregate them, and publish a snapshot.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"poolwatch/internal/aggregate"
	"poolwatch/internal/buffer"
	"poolwatch/internal/chain"
	"poolwatch/internal/classify"
	"poolwatch/internal/domain"
	"poolwatch/internal/observability"
	"poolwatch/internal/pricing"
	"poolwatch/internal/resolver"
	"poolwatch/internal/state"
)

// Cycle steps, used in log entries and metric labels.
const (
	StepResolve   = "resolve"
	StepPoolState = "pool_state"
	StepHead      = "head"
	StepLogs      = "logs"
	StepHistory   = "history"
)

// Config holds poller parameters.
type Config struct {
	Interval        time.Duration
	ResolveEvery    int // re-resolve every N cycles; <= 0 resolves only while no pool is known
	LookbackBlocks  uint64
	MaxBlockRange   uint64
	BucketWidth     time.Duration
	BufferCapacity  int
	Decimals        int32
	Factories       []domain.Factory
	References      []common.Address
	HistoryContract *common.Address
}

// DefaultConfig returns the default poller configuration.
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Second,
		ResolveEvery:   12,
		LookbackBlocks: 5000,
		MaxBlockRange:  2000,
		BucketWidth:    time.Minute,
		BufferCapacity: buffer.DefaultCapacity,
		Decimals:       pricing.DefaultDecimals,
	}
}

// session is the per-target working state. Only the goroutine running
// a cycle touches it.
type session struct {
	target    common.Address
	mode      domain.WatchMode
	buf       *buffer.Buffer
	cursor    uint64 // next block to read
	hasCursor bool
	pool      *common.Address
	cycles    int
}

func newSession(target common.Address, mode domain.WatchMode, capacity int) *session {
	s := &session{
		target: target,
		mode:   mode,
		buf:    buffer.New(capacity),
	}
	if mode == domain.ModePool {
		pool := target
		s.pool = &pool
	}
	return s
}

// Status is the poller's run state for the status endpoint.
type Status struct {
	Running      bool          `json:"running"`
	Target       string        `json:"target,omitempty"`
	Mode         string        `json:"mode,omitempty"`
	Cycles       uint64        `json:"cycles"`
	Skipped      uint64        `json:"skipped"`
	LastCycleID  string        `json:"last_cycle_id,omitempty"`
	LastCycleAt  time.Time     `json:"last_cycle_at,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
}

// Poller runs at most one cycle at a time.
type Poller struct {
	cfg       Config
	source    chain.EventSource
	resolver  *resolver.Resolver
	store     *state.Store
	listeners []state.Listener
	logger    zerolog.Logger
	now       func() time.Time

	trigger chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	session *session
	running bool
	pending bool
	cancel  context.CancelFunc
	status  Status
}

// Option configures Poller.
type Option func(*Poller)

// WithListeners registers snapshot listeners.
func WithListeners(ls ...state.Listener) Option {
	return func(p *Poller) {
		p.listeners = append(p.listeners, ls...)
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// New creates a new Poller publishing into store.
func New(cfg Config, source chain.EventSource, store *state.Store, logger zerolog.Logger, opts ...Option) *Poller {
	if cfg.BufferCapacity < 1 {
		cfg.BufferCapacity = buffer.DefaultCapacity
	}
	if cfg.MaxBlockRange < 1 {
		cfg.MaxBlockRange = DefaultConfig().MaxBlockRange
	}
	p := &Poller{
		cfg:      cfg,
		source:   source,
		resolver: resolver.New(source, logger),
		store:    store,
		logger:   logger.With().Str("component", "poller").Logger(),
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetTarget switches the watched address. The in-flight cycle, if any, is
// cancelled and its result discarded; a fresh cycle is triggered.
func (p *Poller) SetTarget(address string, mode domain.WatchMode) error {
	target, err := domain.ParseAddress(address)
	if err != nil {
		return err
	}
	if domain.IsZeroAddress(target) {
		return fmt.Errorf("%w: target is the zero address", domain.ErrInvalidInput)
	}
	if mode == "" {
		mode = domain.ModeToken
	}
	if !mode.IsValid() {
		return fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, mode)
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.session = newSession(target, mode, p.cfg.BufferCapacity)
	p.status.Target = target.Hex()
	p.status.Mode = mode.String()
	p.store.Publish(state.Retarget(p.store.Load(), target, mode, p.now().UTC()))
	p.mu.Unlock()

	p.logger.Info().Str("target", target.Hex()).Str("mode", mode.String()).Msg("target changed")

	select {
	case p.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Run runs a cycle immediately, then on every interval tick until ctx is done.
// In-flight cycles are awaited before Run returns.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	p.logger.Info().Dur("interval", interval).Msg("poller started")

	p.Tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Wait()
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		case <-p.trigger:
			p.start(ctx, true)
		}
	}
}

// Tick starts a cycle unless one is already in flight, in which case the
// tick is skipped. Returns whether a cycle was started.
func (p *Poller) Tick(ctx context.Context) bool {
	return p.start(ctx, false)
}

// Wait blocks until the in-flight cycle, if any, has finished.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Status returns the poller's run state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status
	st.Running = p.running
	return st
}

func (p *Poller) start(ctx context.Context, forced bool) bool {
	p.mu.Lock()
	if p.running {
		if forced {
			p.pending = true
		} else {
			p.status.Skipped++
			observability.RecordPollCycle("skipped", 0)
			p.logger.Debug().Msg("cycle still in flight, skipping tick")
		}
		p.mu.Unlock()
		return false
	}
	sess := p.session
	if sess == nil {
		p.mu.Unlock()
		return false
	}

	cctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go p.runCycle(cctx, cancel, sess)
	return true
}

func (p *Poller) finish(cancel context.CancelFunc) {
	cancel()

	p.mu.Lock()
	p.running = false
	p.cancel = nil
	rerun := p.pending
	p.pending = false
	p.mu.Unlock()

	if rerun {
		select {
		case p.trigger <- struct{}{}:
		default:
		}
	}
	p.wg.Done()
}

// cycleRecorder collects step failures for one cycle.
type cycleRecorder struct {
	p       *Poller
	id      string
	entries []state.LogEntry
	failed  bool
}

func (r *cycleRecorder) info(msg string) {
	r.entries = append(r.entries, state.LogEntry{At: r.p.now().UTC(), Level: state.LevelInfo, Message: msg})
}

func (r *cycleRecorder) warn(kind domain.ErrorKind, msg string) {
	r.entries = append(r.entries, state.LogEntry{At: r.p.now().UTC(), Level: state.LevelWarn, Kind: kind, Message: msg})
	r.p.logger.Warn().Str("cycle", r.id).Str("kind", string(kind)).Msg(msg)
}

func (r *cycleRecorder) fail(step string, err error) {
	kind := domain.KindOf(err)
	r.failed = true
	r.entries = append(r.entries, state.LogEntry{
		At:      r.p.now().UTC(),
		Level:   state.LevelError,
		Kind:    kind,
		Message: fmt.Sprintf("%s: %v", step, err),
	})
	observability.RecordStepError(step, kind)
	r.p.logger.Error().Err(err).Str("cycle", r.id).Str("step", step).Str("kind", string(kind)).Msg("cycle step failed")
}

func (p *Poller) runCycle(ctx context.Context, cancel context.CancelFunc, sess *session) {
	defer p.finish(cancel)

	start := p.now()
	rec := &cycleRecorder{p: p, id: uuid.NewString()}
	result := state.CycleResult{ID: rec.id}

	// 1. Resolve the pool.
	poolChanged := p.resolvePool(ctx, sess, rec)
	result.PoolAddress = copyAddress(sess.pool)

	// 2. Pool state and price.
	if sess.pool != nil {
		pool, err := p.source.PoolState(ctx, *sess.pool)
		if err != nil {
			rec.fail(StepPoolState, err)
		} else {
			result.Pool = &pool
			result.Price = p.price(sess, pool, rec)
		}
	}

	// 3. New transfer logs.
	events := p.fetchTransfers(ctx, sess, rec)

	// 4. Classify and retain.
	if poolChanged {
		sess.buf = sess.buf.Reclassify(sess.pool)
	}
	fresh := sess.buf.Add(classify.ClassifyAll(events, sess.pool)...)
	result.Transfers = sess.buf.Items()

	// 5. Candles.
	result.Candles = aggregate.Aggregate(result.Transfers, p.cfg.BucketWidth,
		aggregate.WithDecimals(p.cfg.Decimals),
		aggregate.Chronological(),
	)

	// 6. Price history.
	if p.cfg.HistoryContract != nil {
		history, err := p.source.PriceHistory(ctx, *p.cfg.HistoryContract)
		if err != nil {
			rec.fail(StepHistory, err)
		} else {
			result.History = history
		}
	}

	sess.cycles++
	duration := p.now().Sub(start)

	if ctx.Err() != nil {
		observability.RecordPollCycle("canceled", duration.Seconds())
		p.logger.Debug().Str("cycle", rec.id).Msg("cycle cancelled, result discarded")
		return
	}

	// 7. Publish, unless the target changed meanwhile.
	result.At = p.now().UTC()
	result.Entries = rec.entries

	p.mu.Lock()
	if p.session != sess {
		p.mu.Unlock()
		observability.RecordPollCycle("canceled", duration.Seconds())
		return
	}
	snap := state.Apply(p.store.Load(), result)
	p.store.Publish(snap)
	p.status.Cycles++
	p.status.LastCycleID = rec.id
	p.status.LastCycleAt = result.At
	p.status.LastDuration = duration
	p.mu.Unlock()

	status := "ok"
	if rec.failed {
		status = "error"
	} else {
		observability.UpdateLastSuccessfulCycle(result.At.Unix())
	}
	observability.RecordPollCycle(status, duration.Seconds())
	p.updateGauges(snap)

	p.logger.Debug().
		Str("cycle", rec.id).
		Int("new", len(fresh)).
		Int("retained", len(snap.Transfers)).
		Int("candles", len(snap.Candles)).
		Dur("duration", duration).
		Msg("cycle finished")

	// 8. Listeners.
	update := state.Update{Snapshot: snap, Fresh: fresh}
	for _, l := range p.listeners {
		if err := l.OnSnapshot(ctx, update); err != nil {
			p.logger.Warn().Err(err).Str("listener", l.Name()).Msg("listener failed")
		}
	}
}

// resolvePool updates sess.pool in token mode and reports whether it changed.
func (p *Poller) resolvePool(ctx context.Context, sess *session, rec *cycleRecorder) bool {
	if sess.mode != domain.ModeToken {
		return false
	}
	due := sess.pool == nil || (p.cfg.ResolveEvery > 0 && sess.cycles%p.cfg.ResolveEvery == 0)
	if !due {
		return false
	}

	res, err := p.resolver.Resolve(ctx, sess.target, p.cfg.Factories, p.cfg.References)
	if err != nil {
		rec.fail(StepResolve, err)
		return false
	}
	if res.Pool == nil {
		msg := fmt.Sprintf("no pool found for %s after %d lookups (%d failed)",
			sess.target.Hex(), len(res.Attempts), len(res.Failures()))
		if sess.pool == nil {
			rec.fail(StepResolve, fmt.Errorf("%w: %s", res.Err(), msg))
		} else {
			rec.warn(domain.KindNotFound, msg+", keeping "+sess.pool.Hex())
		}
		return false
	}
	for _, a := range res.Failures() {
		rec.warn(domain.KindOf(a.Err), fmt.Sprintf("lookup %s/%s failed: %v", a.Factory.Name, a.Reference.Hex(), a.Err))
	}

	if sess.pool != nil && *sess.pool == *res.Pool {
		return false
	}
	rec.info("pool resolved: " + res.Pool.Hex())
	sess.pool = res.Pool
	return true
}

// price derives the watched token's price. In pool mode the pool's token0 is priced.
func (p *Poller) price(sess *session, pool domain.Pool, rec *cycleRecorder) *decimal.Decimal {
	target := sess.target
	if sess.mode == domain.ModePool {
		target = pool.Token0
	} else if !pool.Contains(target) {
		rec.warn(domain.KindInvalidInput, fmt.Sprintf("pool %s does not hold %s", pool.Address.Hex(), target.Hex()))
		return nil
	}

	price, ok := pricing.Price(pool, target)
	if !ok {
		return nil
	}
	return &price
}

// fetchTransfers reads Transfer logs from the cursor to head in bounded chunks.
// The cursor advances only past chunks that were read successfully.
func (p *Poller) fetchTransfers(ctx context.Context, sess *session, rec *cycleRecorder) []domain.TransferEvent {
	head, err := p.source.HeadBlock(ctx)
	if err != nil {
		rec.fail(StepHead, err)
		return nil
	}
	observability.UpdateHeadBlock(head)

	from := sess.cursor
	if !sess.hasCursor {
		from = 0
		if head > p.cfg.LookbackBlocks {
			from = head - p.cfg.LookbackBlocks
		}
	}

	var events []domain.TransferEvent
	for from <= head {
		to := from + p.cfg.MaxBlockRange - 1
		if to > head || to < from {
			to = head
		}

		chunk, err := p.source.TransferLogs(ctx, sess.target, from, to)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				rec.fail(StepLogs, err)
			}
			break
		}
		events = append(events, chunk...)
		sess.cursor = to + 1
		sess.hasCursor = true
		from = to + 1
	}
	return events
}

func (p *Poller) updateGauges(snap state.Snapshot) {
	price, defined := 0.0, false
	if snap.Price != nil {
		price, _ = snap.Price.Float64()
		defined = true
	}
	observability.UpdateState(len(snap.Transfers), len(snap.Candles), price, defined)
}

func copyAddress(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
