package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketScope/internal/book"
	"marketScope/internal/chain"
	"marketScope/internal/dex"
	"marketScope/internal/filter"
	"marketScope/internal/model"
	"marketScope/internal/storage"
)

// Ledger is the read access the engine needs from the ledger client.
// *chain.Client satisfies it.
type Ledger interface {
	FetchOffer(ctx context.Context, address solana.PublicKey) (*model.Offer, error)
	FetchOpenOffers(ctx context.Context, offerMint, acceptMint solana.PublicKey) ([]*model.Offer, error)
	FetchMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
	SubscribeLogs(ctx context.Context) (chain.LogStream, error)
}

// TradeStore persists executed matches.
type TradeStore interface {
	InsertTrades(ctx context.Context, trades []model.TradeRecord) error
}

// EventStore persists decoded event records durably, beside the JSONL
// journal.
type EventStore interface {
	InsertEvents(ctx context.Context, events []model.EventRecord) error
}

// Config holds the static description of one market.
type Config struct {
	BaseMint  solana.PublicKey
	QuoteMint solana.PublicKey

	MaxRetries   int
	RetryBackoff time.Duration
}

// Engine owns the live view of one market: the offer registry, both sorted
// sides, and the log subscription keeping them current. All registry/index
// mutation happens on the goroutine running Run; ledger fetches complete
// synchronously on that goroutine before the next line is handled, so a
// stale in-flight fetch can never stomp newer state. Queries synchronize
// through an RWMutex.
type Engine struct {
	cfg     Config
	ledger  Ledger
	journal storage.Storage
	events  EventStore
	trades  TradeStore
	logger  *zap.Logger
	metrics *Metrics

	createFilter filter.Filter[model.Event, model.CreateOffer]
	cancelFilter filter.Filter[model.Event, model.CancelOffer]
	matchFilter  filter.Filter[model.Event, model.MatchOffers]
	tradeFilter  filter.Filter[model.Event, model.Trade]

	handlers []func(ctx context.Context, slot uint64, event model.Event) error

	mu            sync.RWMutex
	registry      *book.Registry
	index         *book.Index
	baseDecimals  uint8
	quoteDecimals uint8
	stream        chain.LogStream

	cbMu      sync.Mutex
	callbacks map[int]func(model.Event)
}

// New builds an Engine for one (base, quote) pair. journal, events and
// trades are optional sinks; logger may be nil.
func New(cfg Config, ledger Ledger, journal storage.Storage, events EventStore, trades TradeStore, metrics *Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	e := &Engine{
		cfg:       cfg,
		ledger:    ledger,
		journal:   journal,
		events:    events,
		trades:    trades,
		logger:    logger,
		metrics:   metrics,
		registry:  book.NewRegistry(),
		index:     book.NewIndex(),
		callbacks: make(map[int]func(model.Event)),
	}

	isOfMarket := func(fields model.OfferFields) bool {
		_, ok := model.SideFor(fields.OfferMint, fields.AcceptMint, cfg.BaseMint, cfg.QuoteMint)
		return ok
	}

	// The filter trees are built once and reused for every log line.
	allEvents := filter.Identity[model.Event]()
	e.createFilter = filter.Where(filter.Narrow[model.CreateOffer](allEvents), func(ev model.CreateOffer) bool {
		return isOfMarket(ev.OfferFields)
	})
	e.cancelFilter = filter.Where(filter.Narrow[model.CancelOffer](allEvents), func(ev model.CancelOffer) bool {
		return isOfMarket(ev.OfferFields)
	})
	// Both updated offers of a match belong to the same market by
	// construction; checking either side suffices, Or covers both.
	matches := filter.Narrow[model.MatchOffers](allEvents)
	e.matchFilter = filter.Or(
		filter.Where(matches, func(ev model.MatchOffers) bool { return isOfMarket(ev.UpdatedOfferA) }),
		filter.Where(matches, func(ev model.MatchOffers) bool { return isOfMarket(ev.UpdatedOfferB) }),
	)
	e.tradeFilter = filter.Map(e.matchFilter, func(ev model.MatchOffers) model.Trade { return ev.Trade })

	// Handlers run in registration order for every decoded line.
	e.handlers = []func(context.Context, uint64, model.Event) error{
		e.applyCreate,
		e.applyCancel,
		e.applyMatch,
	}

	return e
}

// BaseMint returns the market's base mint.
func (e *Engine) BaseMint() solana.PublicKey { return e.cfg.BaseMint }

// QuoteMint returns the market's quote mint.
func (e *Engine) QuoteMint() solana.PublicKey { return e.cfg.QuoteMint }

// Decimals returns the cached (base, quote) decimal exponents.
func (e *Engine) Decimals() (uint8, uint8) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.baseDecimals, e.quoteDecimals
}

// Load seeds the registry and both index sides from a full snapshot: both
// mints' decimals, then every open offer per direction. The two sides load
// in parallel; they touch disjoint lists and registry upserts commute.
// Load also serves as the full resync after a detected desynchronization.
func (e *Engine) Load(ctx context.Context) error {
	var baseDecimals, quoteDecimals uint8
	err := e.withRetry(ctx, func(ctx context.Context) error {
		var err error
		if baseDecimals, err = e.ledger.FetchMintDecimals(ctx, e.cfg.BaseMint); err != nil {
			return err
		}
		quoteDecimals, err = e.ledger.FetchMintDecimals(ctx, e.cfg.QuoteMint)
		return err
	})
	if err != nil {
		return fmt.Errorf("load mint decimals: %w", err)
	}

	var bids, asks []*model.Offer
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.withRetry(gctx, func(ctx context.Context) error {
			var err error
			bids, err = e.ledger.FetchOpenOffers(ctx, e.cfg.QuoteMint, e.cfg.BaseMint)
			return err
		})
	})
	g.Go(func() error {
		return e.withRetry(gctx, func(ctx context.Context) error {
			var err error
			asks, err = e.ledger.FetchOpenOffers(ctx, e.cfg.BaseMint, e.cfg.QuoteMint)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load offers: %w", err)
	}

	e.mu.Lock()
	e.baseDecimals = baseDecimals
	e.quoteDecimals = quoteDecimals
	e.registry = book.NewRegistry()
	e.registry.Upsert(bids...)
	e.registry.Upsert(asks...)
	e.index.ReplaceSide(model.SideBid, bids)
	e.index.ReplaceSide(model.SideAsk, asks)
	e.mu.Unlock()

	e.setOpenOfferGauges()
	e.logger.Info("market loaded",
		zap.Stringer("base_mint", e.cfg.BaseMint),
		zap.Stringer("quote_mint", e.cfg.QuoteMint),
		zap.Int("bids", len(bids)),
		zap.Int("asks", len(asks)),
	)
	return nil
}

// Resync discards the incremental state and reloads the full snapshot.
func (e *Engine) Resync(ctx context.Context) error {
	return e.Load(ctx)
}

// Run consumes the live log subscription until ctx is cancelled or the
// stream fails. A malformed line is counted and skipped, never fatal.
func (e *Engine) Run(ctx context.Context) error {
	stream, err := e.ledger.SubscribeLogs(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.stream = stream
	e.mu.Unlock()
	defer stream.Unsubscribe()

	for {
		batch, err := stream.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("log subscription: %w", err)
		}
		e.HandleBatch(ctx, batch)
	}
}

// Close detaches the log subscription; no further mutation occurs afterward.
func (e *Engine) Close() {
	e.mu.Lock()
	stream := e.stream
	e.stream = nil
	e.mu.Unlock()
	if stream != nil {
		stream.Unsubscribe()
	}
}

// HandleBatch processes every log line of one delivered transaction in
// order: decode, apply through each registered handler, notify listeners,
// then journal.
func (e *Engine) HandleBatch(ctx context.Context, batch chain.LogBatch) {
	if batch.Failed {
		// Failed transactions still emit program logs; their events must
		// not reach the book.
		return
	}

	ingestedAt := time.Now().UTC().Format(time.RFC3339Nano)
	var records []model.EventRecord
	var trades []model.TradeRecord

	for _, line := range batch.Logs {
		event, err := dex.ParseLog(line)
		if err != nil {
			e.metrics.ParseErrors.Inc()
			e.logger.Warn("malformed event log", zap.Error(err), zap.Uint64("slot", batch.Slot), zap.String("signature", batch.Signature))
			continue
		}
		if event == nil {
			continue
		}

		e.metrics.Events.WithLabelValues(event.Tag()).Inc()
		for _, handler := range e.handlers {
			if err := handler(ctx, batch.Slot, event); err != nil {
				var desync book.DesyncError
				if errors.As(err, &desync) {
					e.logger.Warn("book desynchronized, resyncing",
						zap.Error(err),
						zap.Uint64("slot", batch.Slot),
						zap.String("signature", batch.Signature),
					)
					if err := e.Resync(ctx); err != nil {
						e.logger.Error("resync", zap.Error(err))
					}
					continue
				}
				e.logger.Error("apply event",
					zap.Error(err),
					zap.String("tag", event.Tag()),
					zap.Uint64("slot", batch.Slot),
					zap.String("signature", batch.Signature),
				)
			}
		}
		e.notify(event)

		records = append(records, model.EventRecord{
			Slot:       batch.Slot,
			Signature:  batch.Signature,
			Tag:        event.Tag(),
			Raw:        line,
			IngestedAt: ingestedAt,
		})
		if trade, ok := e.tradeFilter(event); ok {
			trades = append(trades, model.TradeRecord{
				Slot:         batch.Slot,
				Signature:    batch.Signature,
				TokenA:       trade.TokenA.String(),
				TokenB:       trade.TokenB.String(),
				TokenAAmount: trade.TokenAAmount,
				TokenBAmount: trade.TokenBAmount,
				IngestedAt:   ingestedAt,
			})
		}
	}

	e.setOpenOfferGauges()

	if e.journal != nil && len(records) > 0 {
		if err := e.journal.PutEventBatch(records); err != nil {
			e.logger.Warn("journal events", zap.Error(err))
		}
	}
	if e.events != nil && len(records) > 0 {
		if err := e.events.InsertEvents(ctx, records); err != nil {
			e.logger.Warn("store events", zap.Error(err))
		}
	}
	if e.trades != nil && len(trades) > 0 {
		if err := e.trades.InsertTrades(ctx, trades); err != nil {
			e.logger.Warn("store trades", zap.Error(err))
		}
	}
}

// applyCreate enriches a create event with the full ledger record, then
// stores and indexes the offer. The event's amounts reflect only the
// just-created state, so the record is authoritative only after the fetch.
func (e *Engine) applyCreate(ctx context.Context, _ uint64, event model.Event) error {
	ev, ok := e.createFilter(event)
	if !ok {
		return nil
	}

	offer, err := e.ledger.FetchOffer(ctx, ev.Address)
	if err != nil {
		return fmt.Errorf("load created offer: %w", err)
	}
	side, ok := model.SideFor(offer.OfferMint, offer.AcceptMint, e.cfg.BaseMint, e.cfg.QuoteMint)
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.staleFetch(offer) {
		return nil
	}
	if !offer.IsOpen() {
		// Filled or cancelled between the event and the fetch.
		e.index.Remove(side, offer.Address)
		e.registry.Remove(offer.Address)
		return nil
	}
	e.registry.Upsert(offer)
	// Delivery is at-least-once; drop any previous position before placing.
	e.index.Remove(side, offer.Address)
	if err := e.index.Insert(e.registry, side, offer.Fields()); err != nil {
		e.metrics.Desyncs.Inc()
		return err
	}
	return nil
}

// applyCancel removes the offer using the event's address alone; closing
// requires no ledger read.
func (e *Engine) applyCancel(_ context.Context, _ uint64, event model.Event) error {
	ev, ok := e.cancelFilter(event)
	if !ok {
		return nil
	}
	side, ok := model.SideFor(ev.OfferMint, ev.AcceptMint, e.cfg.BaseMint, e.cfg.QuoteMint)
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.index.Remove(side, ev.Address)
	e.registry.Remove(ev.Address)
	return nil
}

// applyMatch updates both matched offers from the event, fetching any the
// registry does not know. Offers whose amounts reach zero are pruned
// eagerly from index and registry.
func (e *Engine) applyMatch(ctx context.Context, slot uint64, event model.Event) error {
	ev, ok := e.matchFilter(event)
	if !ok {
		return nil
	}
	for _, updated := range []model.OfferFields{ev.UpdatedOfferA, ev.UpdatedOfferB} {
		if err := e.applyMatchUpdate(ctx, slot, updated); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyMatchUpdate(ctx context.Context, slot uint64, updated model.OfferFields) error {
	side, ok := model.SideFor(updated.OfferMint, updated.AcceptMint, e.cfg.BaseMint, e.cfg.QuoteMint)
	if !ok {
		return nil
	}

	e.mu.Lock()
	if existing, ok := e.registry.Get(updated.Address); ok {
		if slot < existing.Slot {
			// Replayed match older than tracked state.
			e.mu.Unlock()
			return nil
		}
		existing.Offering = updated.Offering
		existing.AcceptAtLeast = updated.AcceptAtLeast
		// Advance the entry's slot so a later fetch from a lagging RPC
		// node cannot pass the staleness check and stomp this update.
		existing.Slot = slot
		if !existing.IsOpen() {
			e.index.Remove(side, updated.Address)
			e.registry.Remove(updated.Address)
		}
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if updated.Offering == 0 || updated.AcceptAtLeast == 0 {
		// Unknown to us and already fully filled; nothing to track.
		return nil
	}

	offer, err := e.ledger.FetchOffer(ctx, updated.Address)
	if err != nil {
		return fmt.Errorf("load matched offer: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.staleFetch(offer) {
		return nil
	}
	if !offer.IsOpen() {
		return nil
	}
	e.registry.Upsert(offer)
	e.index.Remove(side, offer.Address)
	if err := e.index.Insert(e.registry, side, offer.Fields()); err != nil {
		e.metrics.Desyncs.Inc()
		return err
	}
	return nil
}

// staleFetch reports whether the registry already holds newer state for the
// fetched offer's address. Callers must hold mu.
func (e *Engine) staleFetch(offer *model.Offer) bool {
	existing, ok := e.registry.Get(offer.Address)
	return ok && existing.Slot > offer.Slot
}

// OnEvent registers a callback invoked for every decoded event, in
// registration order. It returns an id for RemoveListener.
func (e *Engine) OnEvent(callback func(model.Event)) int {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	id := len(e.callbacks)
	for {
		if _, ok := e.callbacks[id]; !ok {
			break
		}
		id++
	}
	e.callbacks[id] = callback
	return id
}

// RemoveListener deregisters a callback by id.
func (e *Engine) RemoveListener(id int) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	delete(e.callbacks, id)
}

func (e *Engine) notify(event model.Event) {
	e.cbMu.Lock()
	ids := make([]int, 0, len(e.callbacks))
	for id := range e.callbacks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	callbacks := make([]func(model.Event), 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, e.callbacks[id])
	}
	e.cbMu.Unlock()

	for _, callback := range callbacks {
		callback(event)
	}
}

// DepthBids returns the bid side aggregated into L2 price levels.
func (e *Engine) DepthBids() ([]book.Level, error) {
	return e.depth(model.SideBid)
}

// DepthAsks returns the ask side aggregated into L2 price levels.
func (e *Engine) DepthAsks() ([]book.Level, error) {
	return e.depth(model.SideAsk)
}

func (e *Engine) depth(side model.Side) ([]book.Level, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	levels, err := book.Depth(e.registry, e.index, side, e.baseDecimals, e.quoteDecimals)
	if err != nil {
		e.metrics.Desyncs.Inc()
	}
	return levels, err
}

// Offer returns a copy of one tracked offer by address.
func (e *Engine) Offer(address solana.PublicKey) (model.Offer, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	offer, ok := e.registry.Get(address)
	if !ok {
		return model.Offer{}, false
	}
	return *offer, true
}

// OpenOffersByOwner returns copies of the owner's open offers, optionally
// narrowed to one side (empty side means both).
func (e *Engine) OpenOffersByOwner(owner solana.PublicKey, side model.Side) []model.Offer {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Offer, 0)
	for _, offer := range e.registry.AllByOwner(owner) {
		if !offer.IsOpen() {
			continue
		}
		offerSide, ok := model.SideFor(offer.OfferMint, offer.AcceptMint, e.cfg.BaseMint, e.cfg.QuoteMint)
		if !ok {
			continue
		}
		if side != "" && offerSide != side {
			continue
		}
		out = append(out, *offer)
	}
	return out
}

// NextUnusedSeed returns the smallest unused seed for the owner on a side,
// for building the next create-offer instruction.
func (e *Engine) NextUnusedSeed(owner solana.PublicKey, side model.Side) (uint16, error) {
	offerMint := e.cfg.BaseMint
	if side == model.SideBid {
		offerMint = e.cfg.QuoteMint
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.NextUnusedSeed(owner, offerMint)
}

// BidCount returns the number of indexed bids.
func (e *Engine) BidCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index.Len(model.SideBid)
}

// AskCount returns the number of indexed asks.
func (e *Engine) AskCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index.Len(model.SideAsk)
}

func (e *Engine) setOpenOfferGauges() {
	e.mu.RLock()
	bids := e.index.Len(model.SideBid)
	asks := e.index.Len(model.SideAsk)
	e.mu.RUnlock()
	e.metrics.OpenOffers.WithLabelValues(string(model.SideBid)).Set(float64(bids))
	e.metrics.OpenOffers.WithLabelValues(string(model.SideAsk)).Set(float64(asks))
}
