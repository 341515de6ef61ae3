package market

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"marketScope/internal/chain"
	"marketScope/internal/model"
)

var (
	baseMint  = testKey(1)
	quoteMint = testKey(2)
	otherMint = testKey(3)
	owner     = testKey(4)
)

func testKey(n byte) solana.PublicKey {
	var b [32]byte
	b[0] = n
	b[31] = n
	return solana.PublicKeyFromBytes(b[:])
}

// fakeLedger serves offers from an in-memory map standing in for account
// state at fetch time.
type fakeLedger struct {
	mu     sync.Mutex
	offers map[solana.PublicKey]model.Offer
	stream *fakeStream
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		offers: make(map[solana.PublicKey]model.Offer),
		stream: &fakeStream{batches: make(chan chain.LogBatch, 16)},
	}
}

func (l *fakeLedger) set(offer model.Offer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offers[offer.Address] = offer
}

func (l *fakeLedger) FetchOffer(_ context.Context, address solana.PublicKey) (*model.Offer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	offer, ok := l.offers[address]
	if !ok {
		return nil, chain.NotFoundError{Address: address}
	}
	out := offer
	return &out, nil
}

func (l *fakeLedger) FetchOpenOffers(_ context.Context, offerMint, acceptMint solana.PublicKey) ([]*model.Offer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*model.Offer, 0)
	for _, offer := range l.offers {
		if offer.OfferMint.Equals(offerMint) && offer.AcceptMint.Equals(acceptMint) && offer.Offering > 0 && offer.AcceptAtLeast > 0 {
			copied := offer
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (l *fakeLedger) FetchMintDecimals(_ context.Context, mint solana.PublicKey) (uint8, error) {
	if mint.Equals(quoteMint) {
		return 6, nil
	}
	return 9, nil
}

func (l *fakeLedger) SubscribeLogs(context.Context) (chain.LogStream, error) {
	return l.stream, nil
}

type fakeStream struct {
	batches chan chain.LogBatch
	once    sync.Once
	done    chan struct{}
}

func (s *fakeStream) Recv(ctx context.Context) (chain.LogBatch, error) {
	select {
	case <-ctx.Done():
		return chain.LogBatch{}, ctx.Err()
	case batch, ok := <-s.batches:
		if !ok {
			return chain.LogBatch{}, io.EOF
		}
		return batch, nil
	}
}

func (s *fakeStream) Unsubscribe() {
	s.once.Do(func() {
		if s.done != nil {
			close(s.done)
		}
	})
}

type captureStore struct {
	mu     sync.Mutex
	trades []model.TradeRecord
}

func (s *captureStore) InsertTrades(_ context.Context, trades []model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
	return nil
}

func newTestEngine(t *testing.T, ledger *fakeLedger, trades TradeStore) *Engine {
	t.Helper()
	engine := New(Config{
		BaseMint:     baseMint,
		QuoteMint:    quoteMint,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}, ledger, nil, nil, trades, nil, nil)
	require.NoError(t, engine.Load(context.Background()))
	return engine
}

func askOffer(n byte, offering, acceptAtLeast, slot uint64) model.Offer {
	return model.Offer{
		Address:       testKey(n),
		Owner:         owner,
		OfferMint:     baseMint,
		AcceptMint:    quoteMint,
		Offering:      offering,
		AcceptAtLeast: acceptAtLeast,
		Slot:          slot,
	}
}

func bidOffer(n byte, offering, acceptAtLeast, slot uint64) model.Offer {
	return model.Offer{
		Address:       testKey(n),
		Owner:         owner,
		OfferMint:     quoteMint,
		AcceptMint:    baseMint,
		Offering:      offering,
		AcceptAtLeast: acceptAtLeast,
		Slot:          slot,
	}
}

func createLine(offer model.Offer) string {
	return fmt.Sprintf("Program Log: CREATE:%s,%s,%d,%s,%d",
		offer.Address, offer.OfferMint, offer.Offering, offer.AcceptMint, offer.AcceptAtLeast)
}

func cancelLine(offer model.Offer) string {
	return fmt.Sprintf("Program Log: CANCEL:%s,%s,%d,%s,%d",
		offer.Address, offer.OfferMint, offer.Offering, offer.AcceptMint, offer.AcceptAtLeast)
}

// matchLine renders a match where a (ask, gives base) trades against
// b (bid, gives quote), with the post-match amounts on each.
func matchLine(a, b model.Offer, aToB, bToA uint64) string {
	return fmt.Sprintf("Program Log: MATCH:%s,%d,%s,%d,%s,%d,%d,%s,%d,%d",
		baseMint, aToB, quoteMint, bToA,
		a.Address, a.Offering, a.AcceptAtLeast,
		b.Address, b.Offering, b.AcceptAtLeast)
}

func batch(slot uint64, lines ...string) chain.LogBatch {
	return chain.LogBatch{Slot: slot, Signature: fmt.Sprintf("sig-%d", slot), Logs: lines}
}

func TestLoadSeedsBothSides(t *testing.T) {
	ledger := newFakeLedger()
	ledger.set(askOffer(10, 100, 200, 1))
	ledger.set(askOffer(11, 100, 300, 1))
	ledger.set(bidOffer(20, 500, 100, 1))
	// Closed and out-of-market offers must not load.
	ledger.set(askOffer(12, 0, 100, 1))
	foreign := askOffer(13, 50, 50, 1)
	foreign.AcceptMint = otherMint
	ledger.set(foreign)

	engine := newTestEngine(t, ledger, nil)

	require.Equal(t, 2, engine.AskCount())
	require.Equal(t, 1, engine.BidCount())

	asks, err := engine.DepthAsks()
	require.NoError(t, err)
	require.Len(t, asks, 2)
	// The cheaper ask (200 quote per 100 base) leads.
	require.True(t, asks[0].Price.LT(asks[1].Price))

	base, quote := engine.Decimals()
	require.Equal(t, uint8(9), base)
	require.Equal(t, uint8(6), quote)
}

func TestCreateInsertsFetchedOffer(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, nil)

	offer := askOffer(10, 100, 200, 5)
	ledger.set(offer)
	engine.HandleBatch(context.Background(), batch(5, createLine(offer)))

	require.Equal(t, 1, engine.AskCount())
	open := engine.OpenOffersByOwner(owner, model.SideAsk)
	require.Len(t, open, 1)
	require.Equal(t, offer.Address, open[0].Address)

	tracked, ok := engine.Offer(offer.Address)
	require.True(t, ok)
	require.Equal(t, uint64(100), tracked.Offering)

	_, ok = engine.Offer(testKey(99))
	require.False(t, ok)
}

func TestCreateIsIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, nil)

	offer := askOffer(10, 100, 200, 5)
	ledger.set(offer)
	line := createLine(offer)
	engine.HandleBatch(context.Background(), batch(5, line))
	engine.HandleBatch(context.Background(), batch(5, line))

	require.Equal(t, 1, engine.AskCount())
}

func TestCreateIgnoresOtherMarkets(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, nil)

	foreign := askOffer(10, 100, 200, 5)
	foreign.AcceptMint = otherMint
	ledger.set(foreign)
	engine.HandleBatch(context.Background(), batch(5, createLine(foreign)))

	require.Equal(t, 0, engine.AskCount())
	require.Equal(t, 0, engine.BidCount())
}

func TestCancelRemovesWithoutFetch(t *testing.T) {
	ledger := newFakeLedger()
	offer := bidOffer(20, 500, 100, 1)
	ledger.set(offer)
	engine := newTestEngine(t, ledger, nil)
	require.Equal(t, 1, engine.BidCount())

	// The ledger record is gone by the time the event arrives; cancel must
	// not need it.
	ledger.mu.Lock()
	delete(ledger.offers, offer.Address)
	ledger.mu.Unlock()

	engine.HandleBatch(context.Background(), batch(6, cancelLine(offer)))
	require.Equal(t, 0, engine.BidCount())
	require.Empty(t, engine.OpenOffersByOwner(owner, ""))
}

func TestMatchUpdatesInPlaceAndPrunesFilled(t *testing.T) {
	ledger := newFakeLedger()
	ask := askOffer(10, 100, 200, 1)
	bid := bidOffer(20, 500, 100, 1)
	ledger.set(ask)
	ledger.set(bid)
	engine := newTestEngine(t, ledger, nil)

	trades := &captureStore{}
	engine.trades = trades

	// 40 base for 80 quote: the ask shrinks, the bid fills completely.
	updatedAsk := ask
	updatedAsk.Offering = 60
	updatedAsk.AcceptAtLeast = 120
	updatedBid := bid
	updatedBid.Offering = 0
	updatedBid.AcceptAtLeast = 0

	engine.HandleBatch(context.Background(), batch(7, matchLine(updatedAsk, updatedBid, 40, 80)))

	require.Equal(t, 1, engine.AskCount())
	require.Equal(t, 0, engine.BidCount())

	open := engine.OpenOffersByOwner(owner, model.SideAsk)
	require.Len(t, open, 1)
	require.Equal(t, uint64(60), open[0].Offering)
	require.Equal(t, uint64(120), open[0].AcceptAtLeast)

	require.Len(t, trades.trades, 1)
	require.Equal(t, uint64(40), trades.trades[0].TokenAAmount)
	require.Equal(t, uint64(80), trades.trades[0].TokenBAmount)
}

func TestMatchFetchesUnknownOpenOffer(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, nil)

	// A match referencing an offer created before the subscription started.
	resting := askOffer(10, 60, 120, 3)
	ledger.set(resting)
	counter := bidOffer(20, 0, 0, 3)

	engine.HandleBatch(context.Background(), batch(8, matchLine(resting, counter, 40, 80)))

	require.Equal(t, 1, engine.AskCount())
	require.Equal(t, 0, engine.BidCount())
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	ledger := newFakeLedger()
	offer := askOffer(10, 100, 200, 9)
	ledger.set(offer)
	engine := newTestEngine(t, ledger, nil)

	// Replayed create: the ledger now answers with an older snapshot than
	// the registry already holds.
	stale := offer
	stale.Slot = 4
	stale.Offering = 999
	ledger.set(stale)

	engine.HandleBatch(context.Background(), batch(4, createLine(stale)))

	open := engine.OpenOffersByOwner(owner, model.SideAsk)
	require.Len(t, open, 1)
	require.Equal(t, uint64(100), open[0].Offering)
}

func TestFailedBatchIsSkipped(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, nil)

	offer := askOffer(10, 100, 200, 5)
	ledger.set(offer)
	failed := batch(5, createLine(offer))
	failed.Failed = true
	engine.HandleBatch(context.Background(), failed)

	require.Equal(t, 0, engine.AskCount())
}

func TestMalformedLineDoesNotStopBatch(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, nil)

	offer := askOffer(10, 100, 200, 5)
	ledger.set(offer)
	engine.HandleBatch(context.Background(), batch(5,
		"Program Log: CREATE:not,enough,fields",
		createLine(offer),
	))

	require.Equal(t, 1, engine.AskCount())
}

func TestListenersSeeEventsInOrder(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, nil)

	var tags []string
	id := engine.OnEvent(func(ev model.Event) { tags = append(tags, ev.Tag()) })

	offer := askOffer(10, 100, 200, 5)
	ledger.set(offer)
	engine.HandleBatch(context.Background(), batch(5, createLine(offer), cancelLine(offer)))

	require.Equal(t, []string{model.CreateOfferTag, model.CancelOfferTag}, tags)

	engine.RemoveListener(id)
	engine.HandleBatch(context.Background(), batch(6, createLine(offer)))
	require.Len(t, tags, 2)
}

func TestNextUnusedSeedBySide(t *testing.T) {
	ledger := newFakeLedger()
	a := askOffer(10, 100, 200, 1)
	a.Seed = 0
	b := askOffer(11, 100, 200, 1)
	b.Seed = 1
	ledger.set(a)
	ledger.set(b)
	engine := newTestEngine(t, ledger, nil)

	seed, err := engine.NextUnusedSeed(owner, model.SideAsk)
	require.NoError(t, err)
	require.Equal(t, uint16(2), seed)

	seed, err = engine.NextUnusedSeed(owner, model.SideBid)
	require.NoError(t, err)
	require.Equal(t, uint16(0), seed)
}

func TestDesyncTriggersResync(t *testing.T) {
	ledger := newFakeLedger()
	resting := askOffer(10, 60, 120, 1)
	ledger.set(resting)
	engine := newTestEngine(t, ledger, nil)

	// Lose the resting entry behind the index's back; its key now dangles.
	engine.mu.Lock()
	engine.registry.Remove(resting.Address)
	engine.mu.Unlock()

	created := askOffer(11, 100, 200, 2)
	ledger.set(created)
	engine.HandleBatch(context.Background(), batch(2, createLine(created)))

	// The dangling key forced a full reload; both ledger offers are back
	// and the book serves cleanly again.
	require.Equal(t, 2, engine.AskCount())
	_, err := engine.DepthAsks()
	require.NoError(t, err)
	_, ok := engine.Offer(resting.Address)
	require.True(t, ok)
}

func TestMatchUpdateBlocksLaggingFetch(t *testing.T) {
	ledger := newFakeLedger()
	offer := askOffer(10, 100, 200, 1)
	ledger.set(offer)
	engine := newTestEngine(t, ledger, nil)

	updated := offer
	updated.Offering = 60
	updated.AcceptAtLeast = 120
	counter := bidOffer(20, 0, 0, 7)
	engine.HandleBatch(context.Background(), batch(7, matchLine(updated, counter, 40, 80)))

	// The RPC node lags the subscription: it still answers with the
	// pre-match record. A replayed create must not resurrect it.
	lagging := offer
	lagging.Slot = 5
	lagging.Offering = 999
	ledger.set(lagging)
	engine.HandleBatch(context.Background(), batch(5, createLine(lagging)))

	tracked, ok := engine.Offer(offer.Address)
	require.True(t, ok)
	require.Equal(t, uint64(60), tracked.Offering)
	require.Equal(t, uint64(120), tracked.AcceptAtLeast)
	require.Equal(t, uint64(7), tracked.Slot)
}

func TestOldMatchReplayIgnored(t *testing.T) {
	ledger := newFakeLedger()
	offer := askOffer(10, 100, 200, 5)
	ledger.set(offer)
	engine := newTestEngine(t, ledger, nil)

	stale := offer
	stale.Offering = 10
	stale.AcceptAtLeast = 20
	counter := bidOffer(20, 0, 0, 3)
	engine.HandleBatch(context.Background(), batch(3, matchLine(stale, counter, 90, 180)))

	tracked, ok := engine.Offer(offer.Address)
	require.True(t, ok)
	require.Equal(t, uint64(100), tracked.Offering)
}

type captureEventStore struct {
	mu      sync.Mutex
	records []model.EventRecord
}

func (s *captureEventStore) InsertEvents(_ context.Context, events []model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, events...)
	return nil
}

func TestEventsPersistToStore(t *testing.T) {
	ledger := newFakeLedger()
	events := &captureEventStore{}
	engine := New(Config{
		BaseMint:     baseMint,
		QuoteMint:    quoteMint,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}, ledger, nil, events, nil, nil, nil)
	require.NoError(t, engine.Load(context.Background()))

	offer := askOffer(10, 100, 200, 5)
	ledger.set(offer)
	engine.HandleBatch(context.Background(), batch(5, createLine(offer), cancelLine(offer)))

	require.Len(t, events.records, 2)
	require.Equal(t, model.CreateOfferTag, events.records[0].Tag)
	require.Equal(t, model.CancelOfferTag, events.records[1].Tag)
	require.Equal(t, uint64(5), events.records[0].Slot)
	require.Equal(t, "sig-5", events.records[0].Signature)
	require.Equal(t, createLine(offer), events.records[0].Raw)
}

func TestRunConsumesStreamUntilCancel(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, nil)

	offer := askOffer(10, 100, 200, 5)
	ledger.set(offer)
	ledger.stream.batches <- batch(5, createLine(offer))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	require.Eventually(t, func() bool { return engine.AskCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
