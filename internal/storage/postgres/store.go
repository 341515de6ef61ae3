package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketScope/internal/model"
)

// Store provides Postgres persistence for decoded events and trades.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertEvents stores decoded event records, deduplicated on
// (slot, signature, raw) so at-least-once delivery stays idempotent.
func (s *Store) InsertEvents(ctx context.Context, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(`
			INSERT INTO dex_events (
				slot, signature, tag, raw, ingested_at
			) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (slot, signature, raw) DO NOTHING
		`,
			int64(event.Slot),
			event.Signature,
			event.Tag,
			event.Raw,
			event.IngestedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertTrades stores executed matches.
func (s *Store) InsertTrades(ctx context.Context, trades []model.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, trade := range trades {
		batch.Queue(`
			INSERT INTO trades (
				slot, signature, token_a, token_b, token_a_amount, token_b_amount, ingested_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (slot, signature, token_a, token_b) DO NOTHING
		`,
			int64(trade.Slot),
			trade.Signature,
			trade.TokenA,
			trade.TokenB,
			int64(trade.TokenAAmount),
			int64(trade.TokenBAmount),
			trade.IngestedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range trades {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// RecentTrades returns up to limit trades, newest slot first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT slot, signature, token_a, token_b, token_a_amount, token_b_amount, ingested_at
		FROM trades
		ORDER BY slot DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.TradeRecord, 0, limit)
	for rows.Next() {
		var trade model.TradeRecord
		var slot, amountA, amountB int64
		if err := rows.Scan(&slot, &trade.Signature, &trade.TokenA, &trade.TokenB, &amountA, &amountB, &trade.IngestedAt); err != nil {
			return nil, err
		}
		trade.Slot = uint64(slot)
		trade.TokenAAmount = uint64(amountA)
		trade.TokenBAmount = uint64(amountB)
		out = append(out, trade)
	}
	return out, rows.Err()
}
