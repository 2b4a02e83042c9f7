package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrVaultNotFound is returned when no projected vault exists for an owner.
var ErrVaultNotFound = errors.New("vault not found")

// Service provides read-only access to the projection tables. Queries
// never touch the engine; every response carries as_of_sequence so the
// caller can judge freshness against the engine sequence.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetVault returns one vault's projected balances.
func (s *Service) GetVault(ctx context.Context, owner string) (*VaultResponse, error) {
	asOfSeq, err := s.watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var v VaultResponse
	v.AsOfSequence = asOfSeq
	err = s.db.QueryRowContext(ctx, `
		SELECT owner, collateral, obligations, underlying, redeemed, opened_at, updated_at
		FROM projections.vaults
		WHERE owner = $1
	`, owner).Scan(
		&v.Owner, &v.Collateral, &v.Obligations, &v.Underlying,
		&v.Redeemed, &v.OpenedAt, &v.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrVaultNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVaults returns vaults ordered by owner, with cursor pagination.
func (s *Service) ListVaults(ctx context.Context, limit int, afterOwner string) ([]VaultResponse, error) {
	asOfSeq, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, collateral, obligations, underlying, redeemed, opened_at, updated_at
		FROM projections.vaults
		WHERE owner > $1
		ORDER BY owner
		LIMIT $2
	`, afterOwner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vaults []VaultResponse
	for rows.Next() {
		var v VaultResponse
		v.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&v.Owner, &v.Collateral, &v.Obligations, &v.Underlying,
			&v.Redeemed, &v.OpenedAt, &v.UpdatedAt,
		); err != nil {
			return nil, err
		}
		vaults = append(vaults, v)
	}
	return vaults, rows.Err()
}

// GetExerciseHistory returns settled exercise legs against a vault,
// newest first, with cursor pagination on sequence.
func (s *Service) GetExerciseHistory(ctx context.Context, vaultOwner string, limit int, beforeSequence *int64) ([]ExerciseHistoryResponse, error) {
	asOfSeq, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT sequence, exerciser, vault_owner, count, collateral_paid, underlying_paid, timestamp
		FROM projections.exercise_history
		WHERE vault_owner = $1
	`
	args := []interface{}{vaultOwner}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []ExerciseHistoryResponse
	for rows.Next() {
		var h ExerciseHistoryResponse
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.Sequence, &h.Exerciser, &h.VaultOwner, &h.Count,
			&h.CollateralPaid, &h.UnderlyingPaid, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// GetLiquidationHistory returns executed liquidations against a vault,
// newest first, with cursor pagination on sequence.
func (s *Service) GetLiquidationHistory(ctx context.Context, vaultOwner string, limit int, beforeSequence *int64) ([]LiquidationHistoryResponse, error) {
	asOfSeq, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT sequence, liquidator, vault_owner, count, collateral_paid, timestamp
		FROM projections.liquidation_history
		WHERE vault_owner = $1
	`
	args := []interface{}{vaultOwner}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []LiquidationHistoryResponse
	for rows.Next() {
		var h LiquidationHistoryResponse
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.Sequence, &h.Liquidator, &h.VaultOwner, &h.Count,
			&h.CollateralPaid, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (s *Service) watermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT sequence FROM projections.watermark WHERE id = 1
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
