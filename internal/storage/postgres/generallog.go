package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// General log types.
const (
	LogConnection = "connection"
	LogChat       = "chat"
	LogAdmin      = "admin"
)

// GeneralLogEntry is one audit row.
type GeneralLogEntry struct {
	AccountID   int64
	CharacterID int64
	Type        string
	IP          string
	Message     string
}

// GeneralLogRepository appends audit rows.
type GeneralLogRepository struct {
	db *pgxpool.Pool
}

// NewGeneralLogRepository creates a GeneralLogRepository backed by the given pool.
func NewGeneralLogRepository(db *pgxpool.Pool) *GeneralLogRepository {
	return &GeneralLogRepository{db: db}
}

// Write appends one entry. A zero CharacterID is stored as NULL.
func (r *GeneralLogRepository) Write(ctx context.Context, e GeneralLogEntry) error {
	var charID *int64
	if e.CharacterID != 0 {
		charID = &e.CharacterID
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO general_logs (account_id, character_id, log_type, ip, message)
		VALUES ($1, $2, $3, $4, $5)`,
		e.AccountID, charID, e.Type, e.IP, e.Message,
	)
	if err != nil {
		return fmt.Errorf("writing general log: %w", err)
	}
	return nil
}

// Count returns the number of entries of logType for accountID.
func (r *GeneralLogRepository) Count(ctx context.Context, accountID int64, logType string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM general_logs WHERE account_id = $1 AND log_type = $2`,
		accountID, logType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting general logs: %w", err)
	}
	return n, nil
}
