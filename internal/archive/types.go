package archive

import (
	"context"
	"time"
)

// Record is one archived transcript turn.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Seq         int       `json:"seq"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists finalized turns per session.
type Store interface {
	SaveTurn(ctx context.Context, record Record) error
	SessionTurns(ctx context.Context, sessionID string, limit int) ([]Record, error)
	Close() error
}
