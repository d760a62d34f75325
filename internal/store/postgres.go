package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ReplaceAll swaps the ledger inside one transaction so a failed import
// never leaves a half-replaced ledger behind.
func (s *PostgresStore) ReplaceAll(ctx context.Context, purchases []model.Purchase) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM purchases`); err != nil {
		return fmt.Errorf("clear purchases: %w", err)
	}

	for i := range purchases {
		p := &purchases[i]
		if _, err := tx.Exec(ctx,
			`INSERT INTO purchases (id, timestamp, quantity_btc, cost_fiat, unit_price_fiat, source_file)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)`,
			p.ID, p.Timestamp,
			p.QuantityBTC.String(), p.CostFiat.String(), p.UnitPriceFiat.String(),
			p.SourceFile,
		); err != nil {
			return fmt.Errorf("insert purchase %s: %w", p.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO purchases (id, timestamp, quantity_btc, cost_fiat, unit_price_fiat, source_file)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)`,
		p.ID, p.Timestamp,
		p.QuantityBTC.String(), p.CostFiat.String(), p.UnitPriceFiat.String(),
		p.SourceFile,
	)
	return err
}

func (s *PostgresStore) ListPurchases(ctx context.Context) ([]model.Purchase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp,
		        quantity_btc::TEXT, cost_fiat::TEXT, unit_price_fiat::TEXT,
		        source_file
		 FROM purchases ORDER BY timestamp`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		var p model.Purchase
		var qtyS, costS, unitS string

		if err := rows.Scan(&p.ID, &p.Timestamp, &qtyS, &costS, &unitS, &p.SourceFile); err != nil {
			return nil, err
		}

		p.QuantityBTC, _ = decimal.NewFromString(qtyS)
		p.CostFiat, _ = decimal.NewFromString(costS)
		p.UnitPriceFiat, _ = decimal.NewFromString(unitS)

		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
