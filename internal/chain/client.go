package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"marketScope/internal/dex"
	"marketScope/internal/model"
)

// Client wraps Solana RPC/WS access and provides offer-aware helpers.
type Client struct {
	program   solana.PublicKey
	rpcClient *rpc.Client
	wsClient  *ws.Client

	mu            sync.RWMutex
	decimalsCache map[solana.PublicKey]uint8
}

// NewClient creates a client for the given endpoints. wsURL may be empty
// when no live subscription is needed.
func NewClient(ctx context.Context, rpcURL, wsURL string, program solana.PublicKey) (*Client, error) {
	c := &Client{
		program:       program,
		rpcClient:     rpc.New(rpcURL),
		decimalsCache: make(map[solana.PublicKey]uint8),
	}
	if wsURL != "" {
		wsClient, err := ws.Connect(ctx, wsURL)
		if err != nil {
			return nil, fmt.Errorf("connect ws: %w", err)
		}
		c.wsClient = wsClient
	}
	return c, nil
}

// Close closes the underlying connections.
func (c *Client) Close() {
	if c.wsClient != nil {
		c.wsClient.Close()
	}
}

// Program returns the dex program id this client reads.
func (c *Client) Program() solana.PublicKey {
	return c.program
}

// Slot returns the latest confirmed slot.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	return c.rpcClient.GetSlot(ctx, rpc.CommitmentConfirmed)
}

// FetchOffer loads one offer record by address. The returned offer's address
// is recomputed from the record's own derivation inputs, and its holding
// address is derived alongside.
func (c *Client) FetchOffer(ctx context.Context, address solana.PublicKey) (*model.Offer, error) {
	res, err := c.rpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, NotFoundError{Address: address}
		}
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if res.Value == nil {
		return nil, NotFoundError{Address: address}
	}
	return c.buildOffer(address, res.Value.Owner, res.Value.Data.GetBinary())
}

// FetchOpenOffers loads every open offer giving offerMint for acceptMint,
// filtered server-side by byte-offset equality on the mint fields. Closed
// offers are dropped. This is expensive for the RPC node; it is meant for
// snapshot loads, not per-event reads.
func (c *Client) FetchOpenOffers(ctx context.Context, offerMint, acceptMint solana.PublicKey) ([]*model.Offer, error) {
	out, err := c.rpcClient.GetProgramAccountsWithOpts(ctx, c.program, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Filters: []rpc.RPCFilter{
			{DataSize: dex.OfferAccountSize},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: dex.OfferMintOffset, Bytes: solana.Base58(offerMint.Bytes())}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: dex.OfferAcceptMintOffset, Bytes: solana.Base58(acceptMint.Bytes())}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get program accounts: %w", err)
	}

	offers := make([]*model.Offer, 0, len(out))
	for _, keyed := range out {
		offer, err := c.buildOffer(keyed.Pubkey, keyed.Account.Owner, keyed.Account.Data.GetBinary())
		if err != nil {
			return nil, err
		}
		if !offer.IsOpen() {
			continue
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (c *Client) buildOffer(address, owner solana.PublicKey, data []byte) (*model.Offer, error) {
	if !owner.Equals(c.program) {
		return nil, InvalidOwnerError{Address: address, Owner: owner}
	}
	if len(data) < dex.OfferAccountSize {
		return nil, InvalidSizeError{Address: address, Size: len(data)}
	}

	raw, err := dex.DecodeOffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode offer %s: %w", address, err)
	}

	derived, err := dex.CreateOfferAddress(raw.Owner, raw.OfferMint, raw.AcceptMint, raw.Seed, raw.Bump, c.program)
	if err != nil {
		return nil, fmt.Errorf("derive offer address for %s: %w", address, err)
	}
	holding, err := dex.HoldingAddress(raw.OfferMint, derived)
	if err != nil {
		return nil, fmt.Errorf("derive holding address for %s: %w", address, err)
	}

	return &model.Offer{
		Address:        derived,
		Owner:          raw.Owner,
		OfferMint:      raw.OfferMint,
		AcceptMint:     raw.AcceptMint,
		Offering:       raw.Offering,
		AcceptAtLeast:  raw.AcceptAtLeast,
		Slot:           raw.Slot,
		Seed:           raw.Seed,
		Bump:           raw.Bump,
		HoldingAddress: holding,
		RefundTo:       raw.RefundTo,
		CreditTo:       raw.CreditTo,
		RefundRentTo:   raw.RefundRentTo,
	}, nil
}

// FetchMintDecimals returns the decimal exponent of a token mint, using an
// in-memory cache.
func (c *Client) FetchMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	c.mu.RLock()
	decimals, ok := c.decimalsCache[mint]
	c.mu.RUnlock()
	if ok {
		return decimals, nil
	}

	res, err := c.rpcClient.GetAccountInfoWithOpts(ctx, mint, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, NotFoundError{Address: mint}
		}
		return 0, fmt.Errorf("get mint %s: %w", mint, err)
	}
	if res.Value == nil {
		return 0, NotFoundError{Address: mint}
	}

	decimals, err = dex.DecodeMintDecimals(res.Value.Data.GetBinary())
	if err != nil {
		return 0, fmt.Errorf("decode mint %s: %w", mint, err)
	}

	c.mu.Lock()
	c.decimalsCache[mint] = decimals
	c.mu.Unlock()

	return decimals, nil
}

// LogBatch is one delivery from the log subscription: every log line of one
// transaction mentioning the program.
type LogBatch struct {
	Slot      uint64
	Signature string
	Failed    bool
	Logs      []string
}

// LogStream delivers program log batches until unsubscribed.
type LogStream interface {
	Recv(ctx context.Context) (LogBatch, error)
	Unsubscribe()
}

// SubscribeLogs opens a live subscription for transactions mentioning the
// dex program. Unsubscribing stops future deliveries only; it does not
// cancel reads already in flight.
func (c *Client) SubscribeLogs(ctx context.Context) (LogStream, error) {
	if c.wsClient == nil {
		return nil, fmt.Errorf("no websocket endpoint configured")
	}
	sub, err := c.wsClient.LogsSubscribeMentions(c.program, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}
	return &logStream{sub: sub}, nil
}

type logStream struct {
	sub *ws.LogSubscription
}

func (s *logStream) Recv(ctx context.Context) (LogBatch, error) {
	got, err := s.sub.Recv(ctx)
	if err != nil {
		return LogBatch{}, err
	}
	return LogBatch{
		Slot:      got.Context.Slot,
		Signature: got.Value.Signature.String(),
		Failed:    got.Value.Err != nil,
		Logs:      got.Value.Logs,
	}, nil
}

func (s *logStream) Unsubscribe() {
	s.sub.Unsubscribe()
}
