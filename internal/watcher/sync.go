package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"autolingo/internal/notification"
	"autolingo/internal/tracks"
)

// RunScheduledSync walks every stored preference and re-aligns the show's
// episodes with it. Intended to run from the cron scheduler to catch changes
// that happened while no session was active.
func (m *Manager) RunScheduledSync(ctx context.Context) {
	cfg := m.cfg.Get()

	prefs, err := m.db.ListPreferences()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list preferences for scheduled sync")
		return
	}

	log.Info().Int("preferences", len(prefs)).Msg("Starting scheduled sync")
	start := time.Now()

	updatedShows := 0
	updatedEpisodes := 0

	for _, pref := range prefs {
		select {
		case <-ctx.Done():
			log.Warn().Msg("Scheduled sync cancelled")
			return
		default:
		}

		if cfg.ShouldIgnoreShow(pref.ShowTitle, pref.ShowRatingKey) {
			continue
		}

		userClient := m.clientForUser(ctx, pref.UserID)

		episodes, err := userClient.ShowEpisodes(ctx, "/library/metadata/"+pref.ShowRatingKey)
		if err != nil {
			log.Warn().Err(err).
				Str("user", pref.Username).
				Str("show", pref.ShowTitle).
				Msg("Failed to list show episodes during sync")
			continue
		}

		reference := pickReferenceEpisode(episodes)
		if reference == nil {
			continue
		}

		tc := tracks.NewTrackChanges(userClient, pref.Username, reference, tracks.EventScheduler)
		tc.Compute(ctx, episodes)
		tc.Apply(ctx)

		if tc.HasChanges() {
			updatedShows++
			updatedEpisodes += updatedEpisodeCount(tc.Changes())
			m.recordHistory(pref.UserID, pref.Username, reference, tc)
		}
	}

	if pruned, err := m.db.PruneHistory(time.Now().Add(-historyRetention)); err != nil {
		log.Error().Err(err).Msg("Failed to prune history")
	} else if pruned > 0 {
		log.Info().Int64("pruned", pruned).Msg("Pruned old history entries")
	}
	m.cache.CleanupExpired(cacheMaxAge)

	log.Info().
		Int("shows", updatedShows).
		Int("episodes", updatedEpisodes).
		Dur("duration", time.Since(start)).
		Msg("Scheduled sync finished")

	if updatedEpisodes == 0 {
		return
	}
	m.notifier.Notify(notification.Event{
		Type:    notification.EventScheduler,
		Title:   "Scheduled sync",
		Message: fmt.Sprintf("Updated %d episode(s) across %d show(s)", updatedEpisodes, updatedShows),
	})
}
