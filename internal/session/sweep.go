package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweep periodically removes expired sessions from store and reports how many
// went. It blocks until the context is cancelled.
func Sweep(ctx context.Context, store Store, interval time.Duration, swept func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("session sweep failed")
				continue
			}
			if swept != nil {
				swept(removed)
			}
		}
	}
}
