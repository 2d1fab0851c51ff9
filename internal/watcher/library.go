package watcher

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"autolingo/internal/notification"
	"autolingo/internal/plex"
	"autolingo/internal/tracks"
)

// handleTimeline reacts to library scan results: a completed episode entry
// means the item was added or its metadata changed.
func (m *Manager) handleTimeline(entry plex.TimelineEntry) {
	if entry.Identifier != plex.LibraryIdentifier ||
		entry.Type != plex.MediaTypeEpisode ||
		entry.State != plex.TimelineStateCompleted {
		return
	}

	ratingKey := strconv.Itoa(entry.ItemID)
	if m.cache.HasRecentActivity("timeline", ratingKey, activityDedupe) {
		return
	}
	m.cache.MarkRecentActivity("timeline", ratingKey)

	if entry.MetadataState == "created" {
		m.cache.MarkNewlyAdded(ratingKey)
	}

	m.queue.Enqueue(func() { m.processLibraryItem(m.ctx, ratingKey) })
}

// handleActivity reacts to finished server activities such as section refresh
// or media analysis, which can change an item's stream layout.
func (m *Manager) handleActivity(activity plex.ActivityNotification) {
	if activity.Event != "ended" {
		return
	}
	activityType := activity.Activity.Type
	if !strings.HasPrefix(activityType, "library.update.section") &&
		!strings.HasPrefix(activityType, "media.generate") {
		return
	}

	ratingKey := extractRatingKey(activity.Activity.Context.Key)
	if ratingKey == "" {
		return
	}
	if m.cache.HasRecentActivity("activity", ratingKey, activityDedupe) {
		return
	}
	m.cache.MarkRecentActivity("activity", ratingKey)

	m.queue.Enqueue(func() { m.processLibraryItem(m.ctx, ratingKey) })
}

// processLibraryItem aligns a new or updated episode with every stored user
// preference for its show.
func (m *Manager) processLibraryItem(ctx context.Context, ratingKey string) {
	episode, err := m.client.Episode(ctx, ratingKey)
	if err != nil {
		log.Debug().Err(err).Str("rating_key", ratingKey).Msg("Failed to fetch library item")
		return
	}
	if episode.GrandparentKey == "" {
		return
	}

	cfg := m.cfg.Get()
	showKey := extractRatingKey(episode.GrandparentKey)
	if cfg.ShouldIgnoreShow(episode.GrandparentTitle, showKey) {
		log.Debug().Str("show", episode.GrandparentTitle).Msg("Show is on the ignore list, skipping")
		return
	}

	isNew := m.cache.IsNewlyAdded(ratingKey, newEpisodeWindow) ||
		(episode.AddedAt > 0 && time.Since(time.Unix(episode.AddedAt, 0)) < newEpisodeWindow)

	prefs, err := m.db.ListPreferencesForShow(showKey)
	if err != nil {
		log.Error().Err(err).Str("show", episode.GrandparentTitle).Msg("Failed to list preferences for show")
		return
	}
	if len(prefs) == 0 {
		log.Debug().Str("episode", episode.ShortName()).Msg("No stored preferences for show, skipping")
		return
	}

	log.Info().
		Str("episode", episode.ShortName()).
		Bool("new", isNew).
		Int("users", len(prefs)).
		Msg("Processing library item")

	event := tracks.EventUpdated
	if isNew {
		event = tracks.EventNewEpisode
	}
	aggregate := tracks.NewOrUpdated(event, isNew)

	for _, pref := range prefs {
		userClient := m.clientForUser(ctx, pref.UserID)

		episodes, err := userClient.ShowEpisodes(ctx, episode.GrandparentKey)
		if err != nil {
			log.Warn().Err(err).Str("user", pref.Username).Msg("Failed to list show episodes")
			continue
		}

		reference := pickReferenceEpisode(episodes)
		if reference == nil || reference.RatingKey == episode.RatingKey {
			continue
		}

		aggregate.ChangeTrackForUser(ctx, userClient, pref.Username, reference, episode)

		userChanges := aggregate.UserChanges()
		if tc := userChanges[len(userChanges)-1]; tc.HasChanges() {
			m.recordHistory(pref.UserID, pref.Username, episode, tc)
		}
	}

	if !aggregate.HasChanges() {
		return
	}

	eventType := notification.EventUpdatedEpisode
	if isNew {
		eventType = notification.EventNewEpisode
	}
	m.notifier.Notify(notification.Event{
		Type:    eventType,
		Title:   aggregate.Title(),
		Message: aggregate.Description(),
		Fields: map[string]string{
			"show": episode.GrandparentTitle,
		},
	})
}
