package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconciler applies emoji lifecycle changes (rename, removal) to the
// catalog. A rename for an emoji the catalog never saw is logged and
// skipped rather than treated as a failure; an emoji deleted while the
// tracker was offline is never reconciled retroactively.
type Reconciler struct {
	store Store
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// RenameEmoji updates the display name in place.
func (r *Reconciler) RenameEmoji(ctx context.Context, emojiID, newName string) error {
	found, err := r.store.RenameEmoji(ctx, emojiID, newName)
	if err != nil {
		return err
	}
	if !found {
		log.Error().Str("emojiId", emojiID).Str("name", newName).Msg("Rename for untracked emoji, skipping")
	}
	return nil
}

// SoftDeleteEmoji stamps the emoji as removed from its guild. Repeat
// deliveries are harmless; an already-set timestamp is never moved.
func (r *Reconciler) SoftDeleteEmoji(ctx context.Context, emojiID string) error {
	return r.store.SoftDeleteEmoji(ctx, emojiID, time.Now().UTC())
}
