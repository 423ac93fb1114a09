package store

import (
	"context"
	"fmt"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
)

// GetSyncState reads the single-row sync cursor.
func (s *Store) GetSyncState(ctx context.Context) (domain.SyncState, error) {
	var state domain.SyncState
	var status string
	err := s.conn.QueryRowContext(ctx, `
		SELECT last_symbols_sync_at, last_incremental_sync_at, last_backfill_sync_at,
		       last_finalized_trade_date, bootstrap_cursor_symbol, bootstrap_status,
		       last_error, updated_at
		FROM sync_state WHERE id = 1
	`).Scan(
		&state.LastSymbolsSyncAt, &state.LastIncrementalSyncAt, &state.LastBackfillSyncAt,
		&state.LastFinalizedTradeDate, &state.BootstrapCursorSymbol, &status,
		&state.LastError, &state.UpdatedAt,
	)
	if err != nil {
		return domain.SyncState{}, fmt.Errorf("get sync state: %w", err)
	}
	state.BootstrapStatus = domain.BootstrapStatus(status)
	return state, nil
}

// SyncStateUpdate carries the subset of sync_state columns a caller wants to
// change; nil fields are left untouched.
type SyncStateUpdate struct {
	LastSymbolsSyncAt      *string
	LastIncrementalSyncAt  *string
	LastBackfillSyncAt     *string
	LastFinalizedTradeDate *string
	BootstrapCursorSymbol  *string
	BootstrapStatus        *domain.BootstrapStatus
	LastError              *string
}

// UpdateSyncState applies a partial update to the single-row cursor.
func (s *Store) UpdateSyncState(ctx context.Context, update SyncStateUpdate) error {
	current, err := s.GetSyncState(ctx)
	if err != nil {
		return err
	}
	if update.LastSymbolsSyncAt != nil {
		current.LastSymbolsSyncAt = *update.LastSymbolsSyncAt
	}
	if update.LastIncrementalSyncAt != nil {
		current.LastIncrementalSyncAt = *update.LastIncrementalSyncAt
	}
	if update.LastBackfillSyncAt != nil {
		current.LastBackfillSyncAt = *update.LastBackfillSyncAt
	}
	if update.LastFinalizedTradeDate != nil {
		current.LastFinalizedTradeDate = *update.LastFinalizedTradeDate
	}
	if update.BootstrapCursorSymbol != nil {
		current.BootstrapCursorSymbol = *update.BootstrapCursorSymbol
	}
	if update.BootstrapStatus != nil {
		current.BootstrapStatus = *update.BootstrapStatus
	}
	if update.LastError != nil {
		current.LastError = *update.LastError
	}

	_, err = s.conn.ExecContext(ctx, `
		UPDATE sync_state SET
			last_symbols_sync_at = ?,
			last_incremental_sync_at = ?,
			last_backfill_sync_at = ?,
			last_finalized_trade_date = ?,
			bootstrap_cursor_symbol = ?,
			bootstrap_status = ?,
			last_error = ?,
			updated_at = ?
		WHERE id = 1
	`,
		current.LastSymbolsSyncAt, current.LastIncrementalSyncAt, current.LastBackfillSyncAt,
		current.LastFinalizedTradeDate, current.BootstrapCursorSymbol, string(current.BootstrapStatus),
		current.LastError, timeutil.FormatDateTime(timeutil.NowBeijing()),
	)
	if err != nil {
		return fmt.Errorf("update sync state: %w", err)
	}
	return nil
}

// ResetBootstrapCursor clears the bootstrap cursor and status, restoring the
// store's sync_state to its pre-bootstrap idle state. Restores the
// originating codebase's reset_bootstrap_cursor operator primitive, dropped
// from the distilled spec prose but required for operators to retry a
// bootstrap that was stopped mid-run.
func (s *Store) ResetBootstrapCursor(ctx context.Context) error {
	emptyCursor := ""
	idle := domain.BootstrapIdle
	return s.UpdateSyncState(ctx, SyncStateUpdate{
		BootstrapCursorSymbol: &emptyCursor,
		BootstrapStatus:       &idle,
	})
}
