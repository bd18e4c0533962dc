// internal/infrastructure/persistence/postgres/repository/trade/repository.go
package trade_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

// TradeRepository stores active trades and their archive.
type TradeRepository interface {
	Insert(ctx context.Context, t *trades.Trade) error
	Get(ctx context.Context, key trades.Key) (*trades.Trade, error)
	Exists(ctx context.Context, key trades.Key) (bool, error)
	ListActive(ctx context.Context) ([]*trades.Trade, error)
	Save(ctx context.Context, t *trades.Trade) error
	Archive(ctx context.Context, a Archived) error
	GetCompleted(ctx context.Context, key trades.Key) (*models.CompletedTrade, error)
	RestoreUnverifiedDeleted(ctx context.Context) ([]*trades.Trade, error)
	Counts(ctx context.Context) (active, completed int, err error)
	WithTx(tx *sqlx.Tx) TradeRepository
}

// Archived describes a trade leaving the active table.
type Archived struct {
	Trade      *trades.Trade
	Reason     trades.CompletionReason
	At         time.Time
	FinalPrice decimal.NullDecimal
	// Verified marks a message_deleted archive decided by a definitive "not found".
	Verified bool
}

// TradeRepositoryImpl runs on a pool or on a transaction.
type TradeRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewTradeRepository(db *sqlx.DB) *TradeRepositoryImpl {
	return &TradeRepositoryImpl{db: db}
}

func (r *TradeRepositoryImpl) WithTx(tx *sqlx.Tx) TradeRepository {
	return &TradeRepositoryImpl{db: tx}
}

// Insert adds a new active trade; the key must be unused.
func (r *TradeRepositoryImpl) Insert(ctx context.Context, t *trades.Trade) error {
	row := models.NewTrade(t)
	query := `INSERT INTO active_trades (` + models.TradeColumns + `) VALUES (` + models.TradeValues + `)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, &row); err != nil {
		return fmt.Errorf("TradeRepository.Insert %s: %w", t.Key, err)
	}
	return nil
}

// Get returns an active trade or nil when absent.
func (r *TradeRepositoryImpl) Get(ctx context.Context, key trades.Key) (*trades.Trade, error) {
	var row models.Trade
	query := r.db.Rebind(`SELECT ` + models.TradeColumns + ` FROM active_trades WHERE chat_id = ? AND message_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &row, query, key.ChatID, key.MessageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("TradeRepository.Get %s: %w", key, err)
	}
	return row.ToDomain(), nil
}

// Exists reports whether the key is known as active or archived.
func (r *TradeRepositoryImpl) Exists(ctx context.Context, key trades.Key) (bool, error) {
	var n int
	query := r.db.Rebind(`SELECT
		(SELECT COUNT(*) FROM active_trades WHERE chat_id = ? AND message_id = ?) +
		(SELECT COUNT(*) FROM completed_trades WHERE chat_id = ? AND message_id = ?)`)
	if err := sqlx.GetContext(ctx, r.db, &n, query, key.ChatID, key.MessageID, key.ChatID, key.MessageID); err != nil {
		return false, fmt.Errorf("TradeRepository.Exists %s: %w", key, err)
	}
	return n > 0, nil
}

// ListActive returns every active trade, oldest first.
func (r *TradeRepositoryImpl) ListActive(ctx context.Context) ([]*trades.Trade, error) {
	var rows []models.Trade
	query := `SELECT ` + models.TradeColumns + ` FROM active_trades ORDER BY created_at, chat_id, message_id`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query); err != nil {
		return nil, fmt.Errorf("TradeRepository.ListActive: %w", err)
	}
	out := make([]*trades.Trade, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// Save writes the mutable state of an active trade.
func (r *TradeRepositoryImpl) Save(ctx context.Context, t *trades.Trade) error {
	row := models.NewTrade(t)
	query := `UPDATE active_trades SET
		status = :status,
		live_entry = :live_entry,
		tp1 = :tp1, tp2 = :tp2, tp3 = :tp3, sl = :sl,
		tp_hits = :tp_hits,
		breakeven_active = :breakeven_active,
		manual_overrides = :manual_overrides,
		assigned_api = :assigned_api,
		last_updated = :last_updated
	WHERE chat_id = :chat_id AND message_id = :message_id`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, &row)
	if err != nil {
		return fmt.Errorf("TradeRepository.Save %s: %w", t.Key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("TradeRepository.Save %s: %w", t.Key, sql.ErrNoRows)
	}
	return nil
}

// Archive copies a trade into completed_trades and removes it from active_trades.
// Run it on a transaction to keep exactly one archive row per terminated trade.
func (r *TradeRepositoryImpl) Archive(ctx context.Context, a Archived) error {
	row := models.CompletedTrade{
		Trade:            models.NewTrade(a.Trade),
		CompletionReason: string(a.Reason),
		CompletedAt:      models.Stamp(a.At),
		FinalPrice:       a.FinalPrice,
		DeletionVerified: a.Verified,
	}
	query := `INSERT INTO completed_trades (` + models.TradeColumns + `,
		completion_reason, completed_at, final_price, deletion_verified)
	VALUES (` + models.TradeValues + `,
		:completion_reason, :completed_at, :final_price, :deletion_verified)
	ON CONFLICT (chat_id, message_id) DO UPDATE SET
		status = excluded.status,
		tp_hits = excluded.tp_hits,
		breakeven_active = excluded.breakeven_active,
		manual_overrides = excluded.manual_overrides,
		last_updated = excluded.last_updated,
		completion_reason = excluded.completion_reason,
		completed_at = excluded.completed_at,
		final_price = excluded.final_price,
		deletion_verified = excluded.deletion_verified`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, &row); err != nil {
		return fmt.Errorf("TradeRepository.Archive %s: %w", a.Trade.Key, err)
	}

	del := r.db.Rebind(`DELETE FROM active_trades WHERE chat_id = ? AND message_id = ?`)
	if _, err := r.db.ExecContext(ctx, del, a.Trade.ChatID, a.Trade.MessageID); err != nil {
		return fmt.Errorf("TradeRepository.Archive %s: %w", a.Trade.Key, err)
	}
	return nil
}

// GetCompleted returns an archived trade or nil.
func (r *TradeRepositoryImpl) GetCompleted(ctx context.Context, key trades.Key) (*models.CompletedTrade, error) {
	var row models.CompletedTrade
	query := r.db.Rebind(`SELECT ` + models.TradeColumns + `,
		completion_reason, completed_at, final_price, deletion_verified
	FROM completed_trades WHERE chat_id = ? AND message_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &row, query, key.ChatID, key.MessageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("TradeRepository.GetCompleted %s: %w", key, err)
	}
	return &row, nil
}

// RestoreUnverifiedDeleted moves message_deleted archives that were not decided by a
// definitive "not found" back to active_trades. A second run finds nothing to restore.
func (r *TradeRepositoryImpl) RestoreUnverifiedDeleted(ctx context.Context) ([]*trades.Trade, error) {
	var rows []models.CompletedTrade
	query := r.db.Rebind(`SELECT ` + models.TradeColumns + `,
		completion_reason, completed_at, final_price, deletion_verified
	FROM completed_trades
	WHERE completion_reason = ? AND deletion_verified = FALSE
	ORDER BY created_at`)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, string(trades.ReasonMessageDeleted)); err != nil {
		return nil, fmt.Errorf("TradeRepository.RestoreUnverifiedDeleted: %w", err)
	}

	insert := `INSERT INTO active_trades (` + models.TradeColumns + `) VALUES (` + models.TradeValues + `)
	ON CONFLICT (chat_id, message_id) DO NOTHING`
	del := r.db.Rebind(`DELETE FROM completed_trades WHERE chat_id = ? AND message_id = ?`)

	restored := make([]*trades.Trade, 0, len(rows))
	for i := range rows {
		t := rows[i].Trade.ToDomain()
		if t.IsTerminal() {
			t.Status = trades.StatusActive
			if t.EntryType == trades.EntryLimit && t.LiveEntry.IsZero() {
				t.Status = trades.StatusPendingEntry
			}
		}
		row := models.NewTrade(t)
		if _, err := sqlx.NamedExecContext(ctx, r.db, insert, &row); err != nil {
			return nil, fmt.Errorf("TradeRepository.RestoreUnverifiedDeleted %s: %w", t.Key, err)
		}
		if _, err := r.db.ExecContext(ctx, del, t.ChatID, t.MessageID); err != nil {
			return nil, fmt.Errorf("TradeRepository.RestoreUnverifiedDeleted %s: %w", t.Key, err)
		}
		restored = append(restored, t)
	}
	return restored, nil
}

// Counts returns the sizes of both trade tables.
func (r *TradeRepositoryImpl) Counts(ctx context.Context) (int, int, error) {
	var c struct {
		Active    int `db:"active"`
		Completed int `db:"completed"`
	}
	query := `SELECT
		(SELECT COUNT(*) FROM active_trades) AS active,
		(SELECT COUNT(*) FROM completed_trades) AS completed`
	if err := sqlx.GetContext(ctx, r.db, &c, query); err != nil {
		return 0, 0, fmt.Errorf("TradeRepository.Counts: %w", err)
	}
	return c.Active, c.Completed, nil
}
