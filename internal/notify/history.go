package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/group17/smartchill/internal/control"
	"github.com/group17/smartchill/internal/infrastructure/database"
	"github.com/group17/smartchill/internal/infrastructure/logging"
)

const (
	// defaultHistoryLimit is how many entries /history shows by default.
	defaultHistoryLimit = 10

	// maxHistoryLimit caps a single query.
	maxHistoryLimit = 50

	// historyBusyTimeout is the SQLite lock wait in seconds.
	historyBusyTimeout = 5
)

// historySchema creates the alert history table on first open.
const historySchema = `
CREATE TABLE IF NOT EXISTS alert_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id    TEXT NOT NULL,
	device_id  TEXT NOT NULL,
	alert_type TEXT NOT NULL,
	severity   TEXT NOT NULL,
	message    TEXT NOT NULL,
	sent_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_history_chat
	ON alert_history (chat_id, sent_at DESC);
`

// HistoryEntry is one delivered alert as stored locally.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	DeviceID  string    `json:"device_id"`
	AlertType string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sent_at"`
}

// History persists delivered alerts in a local SQLite file so users can
// review them with /history even after the notifier restarts.
type History struct {
	db *database.DB
}

// OpenHistory opens (creating if needed) the alert history database.
//
// Parameters:
//   - path: Filesystem path to the SQLite file
//
// Returns:
//   - *History: Ready-to-use history store
//   - error: If the database cannot be opened or the schema created
func OpenHistory(path string) (*History, error) {
	db, err := database.Open(database.Config{
		Path:        path,
		WALMode:     true,
		BusyTimeout: historyBusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("notify: opening history database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), historySchema); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("notify: creating history schema: %w", err)
	}

	return &History{db: db}, nil
}

// Record stores a delivered alert for a chat.
func (h *History) Record(ctx context.Context, chatID string, alert control.Alert) error {
	sentAt := alert.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO alert_history (chat_id, device_id, alert_type, severity, message, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		chatID, alert.DeviceID, alert.AlertType, alert.Severity, alert.Message,
		sentAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("notify: recording alert: %w", err)
	}
	return nil
}

// Recent returns the most recent alerts delivered to a chat, newest first.
// A limit of 0 or less uses the default; anything above the cap is clamped.
func (h *History) Recent(ctx context.Context, chatID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, chat_id, device_id, alert_type, severity, message, sent_at
		 FROM alert_history
		 WHERE chat_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("notify: querying history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor cleanup

	var entries []HistoryEntry
	for rows.Next() {
		var (
			entry  HistoryEntry
			sentAt string
		)
		if err := rows.Scan(&entry.ID, &entry.ChatID, &entry.DeviceID,
			&entry.AlertType, &entry.Severity, &entry.Message, &sentAt); err != nil {
			return nil, fmt.Errorf("notify: scanning history row: %w", err)
		}
		entry.SentAt, err = time.Parse(time.RFC3339, sentAt)
		if err != nil {
			// Keep the row; a bad timestamp shouldn't hide the alert text.
			entry.SentAt = time.Time{}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterating history rows: %w", err)
	}

	return entries, nil
}

// Prune deletes history entries older than the retention window.
//
// Returns:
//   - int64: Number of entries removed
//   - error: If the delete fails
func (h *History) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339)

	result, err := h.db.ExecContext(ctx,
		`DELETE FROM alert_history WHERE sent_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("notify: pruning history: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("notify: counting pruned rows: %w", err)
	}
	return removed, nil
}

// PruneLoop removes entries older than the retention window on a fixed
// cadence, until the context ends. Run it as a goroutine next to the
// notifier's subscriptions.
func (h *History) PruneLoop(ctx context.Context, every, retention time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := h.Prune(ctx, retention)
			if err != nil {
				logger.Warn("pruning alert history failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("pruned alert history", "removed", removed)
			}
		}
	}
}

// Close releases the underlying database connection.
func (h *History) Close() error {
	return h.db.Close()
}
