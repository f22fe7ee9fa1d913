package archive

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/conversation"
	"github.com/omochi-ai/voicechat/internal/policy"
)

// Archiver writes finalized conversation turns to a Store, masking PII
// first when enabled.
type Archiver struct {
	store     Store
	redactPII bool
	logger    zerolog.Logger
}

func NewArchiver(store Store, redactPII bool, logger zerolog.Logger) *Archiver {
	return &Archiver{
		store:     store,
		redactPII: redactPII,
		logger:    logger.With().Str("component", "archive").Logger(),
	}
}

func (a *Archiver) ArchiveTurn(ctx context.Context, sessionID string, turn conversation.Turn) error {
	rec := Record{
		SessionID: sessionID,
		Seq:       turn.Seq,
		Role:      string(turn.Role),
		Content:   turn.Text,
		CreatedAt: turn.CreatedAt,
	}
	if a.redactPII {
		r := policy.Redact(turn.Text)
		if r.Changed() {
			a.logger.Debug().
				Str("session_id", sessionID).
				Int("emails", r.Emails).
				Int("cards", r.Cards).
				Int("phones", r.Phones).
				Msg("redacted turn")
		}
		rec.Content = r.Text
		rec.PIIRedacted = r.Changed()
	}
	return a.store.SaveTurn(ctx, rec)
}

func (a *Archiver) SessionTurns(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	return a.store.SessionTurns(ctx, sessionID, limit)
}
