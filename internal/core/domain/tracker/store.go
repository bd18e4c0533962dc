// internal/core/domain/tracker/store.go
package tracker

import (
	"context"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	trade_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/trade"
)

// SQLStore is the TradeStore over the trade repository.
type SQLStore struct {
	trade_repo.TradeRepository
	db *postgres.Store
}

func NewSQLStore(db *postgres.Store) *SQLStore {
	return &SQLStore{TradeRepository: trade_repo.NewTradeRepository(db.DB), db: db}
}

// Commit saves t, or archives it when a is non-nil, in one transaction.
func (s *SQLStore) Commit(ctx context.Context, t *trades.Trade, a *trade_repo.Archived) error {
	return s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.TradeRepository.WithTx(tx)
		if a != nil {
			return repo.Archive(ctx, *a)
		}
		return repo.Save(ctx, t)
	})
}
