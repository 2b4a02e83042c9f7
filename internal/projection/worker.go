package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"OptionVault/internal/event"
	"OptionVault/internal/observability"
)

// Worker updates projection tables from committed events. Its input is
// the publish channel, which the engine sends to non-blocking: if the
// worker falls behind, events are dropped and the tables go stale until
// rebuilt from the event log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan event.Envelope
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan event.Envelope, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
	}
}

// Run consumes events until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := w.apply(ctx, env); err != nil {
				// Projections are eventually consistent and can be
				// rebuilt from the event log, so we log and move on.
				w.log.Warn().
					Err(err).
					Int64("sequence", env.Sequence).
					Str("type", env.Type.String()).
					Msg("projection update failed")
				continue
			}

			w.lastSeq = env.Sequence
			if w.metrics != nil {
				w.metrics.ProjectionUpdateDur.WithLabelValues(env.Type.String()).
					Observe(time.Since(start).Seconds())
				w.metrics.ProjectionLastSeq.Set(float64(env.Sequence))
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, env event.Envelope) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch p := env.Payload.(type) {
	case event.VaultOpened:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO projections.vaults
				(owner, collateral, obligations, underlying, redeemed, opened_at, updated_at, updated_seq)
			VALUES ($1, 0, 0, 0, FALSE, $2, $2, $3)
			ON CONFLICT (owner) DO NOTHING
		`, p.Owner.Hex(), env.Timestamp, env.Sequence)

	case event.CollateralAdded:
		err = w.setVault(ctx, tx, p.Owner.Hex(), env,
			`collateral = $2`, p.NewBalance.String())

	case event.ObligationsIssued:
		err = w.adjustVault(ctx, tx, p.Owner.Hex(), env,
			`obligations = obligations + $2`, p.Count.String())

	case event.ObligationsBurned:
		err = w.adjustVault(ctx, tx, p.Owner.Hex(), env,
			`obligations = obligations - $2`, p.Count.String())

	case event.CollateralRemoved:
		err = w.setVault(ctx, tx, p.Owner.Hex(), env,
			`collateral = $2`, p.NewBalance.String())

	case event.UnderlyingRemoved:
		err = w.adjustVault(ctx, tx, p.Owner.Hex(), env,
			`underlying = underlying - $2`, p.Amount.String())

	case event.Exercised:
		_, err = tx.ExecContext(ctx, `
			UPDATE projections.vaults SET
				collateral  = collateral - $2,
				obligations = obligations - $3,
				underlying  = underlying + $4,
				updated_at  = $5,
				updated_seq = $6
			WHERE owner = $1
		`, p.VaultOwner.Hex(), p.CollateralPaid.String(), p.Count.String(),
			p.UnderlyingPaid.String(), env.Timestamp, env.Sequence)
		if err == nil {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO projections.exercise_history
					(sequence, event_id, exerciser, vault_owner, count, collateral_paid, underlying_paid, timestamp)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (sequence) DO NOTHING
			`, env.Sequence, env.EventID, p.Exerciser.Hex(), p.VaultOwner.Hex(),
				p.Count.String(), p.CollateralPaid.String(), p.UnderlyingPaid.String(), env.Timestamp)
		}

	case event.Liquidated:
		_, err = tx.ExecContext(ctx, `
			UPDATE projections.vaults SET
				collateral  = collateral - $2,
				obligations = obligations - $3,
				updated_at  = $4,
				updated_seq = $5
			WHERE owner = $1
		`, p.VaultOwner.Hex(), p.CollateralPaid.String(), p.Count.String(),
			env.Timestamp, env.Sequence)
		if err == nil {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO projections.liquidation_history
					(sequence, event_id, liquidator, vault_owner, count, collateral_paid, timestamp)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (sequence) DO NOTHING
			`, env.Sequence, env.EventID, p.Liquidator.Hex(), p.VaultOwner.Hex(),
				p.Count.String(), p.CollateralPaid.String(), env.Timestamp)
		}

	case event.VaultRedeemed:
		_, err = tx.ExecContext(ctx, `
			UPDATE projections.vaults SET
				collateral  = 0,
				underlying  = 0,
				redeemed    = TRUE,
				updated_at  = $2,
				updated_seq = $3
			WHERE owner = $1
		`, p.Owner.Hex(), env.Timestamp, env.Sequence)

	case event.ParametersUpdated:
		// No projection table for parameters; the watermark still advances.

	default:
		return fmt.Errorf("unhandled event type %s", env.Type)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE projections.watermark SET sequence = $1 WHERE id = 1 AND sequence < $1
	`, env.Sequence); err != nil {
		return err
	}

	return tx.Commit()
}

func (w *Worker) setVault(ctx context.Context, tx *sql.Tx, owner string, env event.Envelope, setClause, value string) error {
	query := fmt.Sprintf(`
		UPDATE projections.vaults SET %s, updated_at = $3, updated_seq = $4
		WHERE owner = $1
	`, setClause)
	_, err := tx.ExecContext(ctx, query, owner, value, env.Timestamp, env.Sequence)
	return err
}

func (w *Worker) adjustVault(ctx context.Context, tx *sql.Tx, owner string, env event.Envelope, setClause, value string) error {
	return w.setVault(ctx, tx, owner, env, setClause, value)
}

// Rebuild truncates the projection tables and replays the event log into
// them. Used when the publish channel dropped events.
func Rebuild(ctx context.Context, db *sql.DB, metrics *observability.Metrics) error {
	log := observability.NewLogger("projection")

	truncateStatements := []string{
		`TRUNCATE projections.vaults`,
		`TRUNCATE projections.exercise_history`,
		`TRUNCATE projections.liquidation_history`,
		`UPDATE projections.watermark SET sequence = 0 WHERE id = 1`,
	}
	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT sequence, event_id, event_type, payload, timestamp
		FROM event_log.events
		ORDER BY sequence ASC
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := &Worker{db: db, metrics: metrics, log: log}
	count := 0
	for rows.Next() {
		var (
			seq       int64
			eventID   string
			eventType string
			payload   []byte
			ts        time.Time
		)
		if err := rows.Scan(&seq, &eventID, &eventType, &payload, &ts); err != nil {
			return err
		}
		env, err := event.Decode(seq, eventID, eventType, payload, ts)
		if err != nil {
			return fmt.Errorf("decode event seq=%d: %w", seq, err)
		}
		if err := w.apply(ctx, env); err != nil {
			return fmt.Errorf("replay event seq=%d: %w", seq, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	log.Info().Int("events", count).Msg("projection rebuild complete")
	return nil
}
