package watcher

import (
	"context"

	"github.com/rs/zerolog/log"

	"autolingo/internal/database"
	"autolingo/internal/notification"
	"autolingo/internal/plex"
	"autolingo/internal/tracks"
)

// processPlayingSession handles one play-session state notification: it
// detects a changed audio/subtitle selection for the watching user and
// propagates it to the rest of the show.
func (m *Manager) processPlayingSession(ctx context.Context, session plex.PlaySessionNotification) {
	ratingKey := session.RatingKey
	if ratingKey == "" {
		ratingKey = extractRatingKey(session.Key)
	}
	if ratingKey == "" {
		return
	}

	m.cache.SetSessionState(session.SessionKey, session.State)

	switch session.State {
	case "playing":
		if !m.cache.ShouldProcessPlaying(session.ClientIdentifier, ratingKey, playingDebounce) {
			return
		}
	case "stopped":
		// A session end gets one final pass to catch selection changes made
		// mid-play between notifications.
	default:
		return
	}

	user, ok := m.resolveUser(ctx, session.ClientIdentifier)
	if !ok {
		log.Debug().
			Str("client", session.ClientIdentifier).
			Str("rating_key", ratingKey).
			Msg("No user found for playing session")
		return
	}

	userClient := m.clientForUser(ctx, user.ID)

	episode, err := userClient.Episode(ctx, ratingKey)
	if err != nil {
		log.Debug().Err(err).Str("rating_key", ratingKey).Msg("Failed to fetch played item")
		return
	}
	if episode.GrandparentKey == "" {
		// Movies and other non-episode items have nothing to propagate to.
		return
	}

	cfg := m.cfg.Get()
	if cfg.ShouldIgnoreShow(episode.GrandparentTitle, extractRatingKey(episode.GrandparentKey)) {
		log.Debug().Str("show", episode.GrandparentTitle).Msg("Show is on the ignore list, skipping")
		return
	}

	audio, subtitle := tracks.SelectedStreams(episode)
	if audio == nil {
		log.Debug().Str("episode", episode.ShortName()).Msg("No selected audio stream, skipping")
		return
	}
	subtitleID := 0
	if subtitle != nil {
		subtitleID = subtitle.ID
	}

	if prev, seen := m.cache.GetSelection(user.ID, ratingKey); seen &&
		prev.AudioStreamID == audio.ID && prev.SubtitleStreamID == subtitleID {
		return
	}
	m.cache.SetSelection(user.ID, ratingKey, audio.ID, subtitleID)

	log.Info().
		Str("user", user.Name).
		Str("episode", episode.ShortName()).
		Str("audio", audio.DisplayName()).
		Str("subtitle", subtitle.DisplayName()).
		Msg("Processing session selection")

	m.savePreference(user, episode, audio, subtitle)

	tc := tracks.NewTrackChanges(userClient, user.Name, episode, tracks.EventPlay)
	episodes, err := tc.EpisodesToUpdate(ctx, tracks.UpdateLevel(cfg.UpdateLevel), tracks.UpdateStrategy(cfg.UpdateStrategy))
	if err != nil {
		log.Error().Err(err).Str("episode", episode.ShortName()).Msg("Failed to list episodes to update")
		return
	}
	tc.Compute(ctx, episodes)
	tc.Apply(ctx)

	if !tc.HasChanges() {
		return
	}

	m.recordHistory(user.ID, user.Name, episode, tc)
	m.notifier.Notify(notification.Event{
		Type:    notification.EventTrackChanged,
		Title:   tc.Title(),
		Message: tc.Description(),
		Fields: map[string]string{
			"user":  user.Name,
			"event": string(tc.Event()),
		},
	})
}

// savePreference persists the user's selection as their preference for the
// show, so new episodes can be aligned without an active session.
func (m *Manager) savePreference(user plex.User, episode *plex.Episode, audio *plex.AudioStream, subtitle *plex.SubtitleStream) {
	pref := &database.Preference{
		UserID:             user.ID,
		Username:           user.Name,
		ShowRatingKey:      extractRatingKey(episode.GrandparentKey),
		ShowTitle:          episode.GrandparentTitle,
		AudioLanguageCode:  audio.LanguageCode,
		AudioCodec:         audio.Codec,
		AudioChannels:      audio.Channels,
		AudioChannelLayout: audio.AudioChannelLayout,
		AudioTitle:         audio.Title,
		AudioDisplayTitle:  audio.DisplayTitle,
	}
	if subtitle != nil {
		pref.SubtitleLanguageCode = &subtitle.LanguageCode
		pref.SubtitleForced = subtitle.Forced
		pref.SubtitleHearingImpaired = subtitle.HearingImpaired
		pref.SubtitleCodec = &subtitle.Codec
		pref.SubtitleTitle = &subtitle.Title
		pref.SubtitleDisplayTitle = &subtitle.DisplayTitle
	}

	if err := m.db.UpsertPreference(pref); err != nil {
		log.Error().Err(err).Str("user", user.Name).Str("show", episode.GrandparentTitle).Msg("Failed to save preference")
	}
}
