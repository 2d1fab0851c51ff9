// Package watcher listens to the media server's notification WebSocket and
// drives the track propagation engine: playback sessions trigger per-user
// selection checks, library scans and activities trigger new-episode handling.
package watcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"autolingo/internal/cache"
	"autolingo/internal/config"
	"autolingo/internal/database"
	"autolingo/internal/notification"
	"autolingo/internal/plex"
	"autolingo/internal/tracks"
)

const (
	// playingDebounce limits how often one client/episode pair is processed.
	playingDebounce = 10 * time.Second

	// activityDedupe suppresses duplicate scan/activity notifications that
	// the server fires for the same item in quick succession.
	activityDedupe = 5 * time.Minute

	// newEpisodeWindow is how recently an item must have been added to count
	// as a new episode rather than an updated one.
	newEpisodeWindow = 5 * time.Minute

	cacheCleanupInterval = time.Hour
	cacheMaxAge          = 24 * time.Hour
	historyRetention     = 90 * 24 * time.Hour
)

// Manager owns the WebSocket listener and the worker pool that processes
// its notifications.
type Manager struct {
	cfg      *config.Store
	client   *plex.Client
	db       *database.DB
	cache    *cache.Cache
	notifier *notification.Manager

	queue *workQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an event manager. Start must be called before it processes
// anything.
func New(cfg *config.Store, client *plex.Client, db *database.DB, c *cache.Cache, notifier *notification.Manager) *Manager {
	return &Manager{
		cfg:      cfg,
		client:   client,
		db:       db,
		cache:    c,
		notifier: notifier,
		queue:    newWorkQueue(cfg.Get().MaxConcurrent),
	}
}

// Start launches the worker pool, the cache janitor and the WebSocket
// listener. It returns immediately; the listener reconnects on its own until
// ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.queue.Start(m.ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cleanupLoop()
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.client.Listen(m.ctx, m.handleNotification); err != nil && m.ctx.Err() == nil {
			log.Error().Err(err).Msg("WebSocket listener stopped unexpectedly")
		}
	}()

	log.Info().Msg("Event watcher started")
}

// Stop cancels the listener and waits for in-flight work to finish.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.queue.Wait()
	m.wg.Wait()
	log.Info().Msg("Event watcher stopped")
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(cacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cache.CleanupExpired(cacheMaxAge)
		}
	}
}

// handleNotification dispatches one parsed WebSocket notification. Heavy work
// goes through the queue so the read loop never blocks.
func (m *Manager) handleNotification(n plex.Notification) {
	cfg := m.cfg.Get()
	container := n.NotificationContainer

	switch container.Type {
	case "playing":
		if !cfg.TriggerOnPlay {
			return
		}
		for _, session := range container.PlaySessionStateNotification {
			m.queue.Enqueue(func() { m.processPlayingSession(m.ctx, session) })
		}
	case "timeline":
		if !cfg.TriggerOnScan {
			return
		}
		for _, entry := range container.TimelineEntry {
			m.handleTimeline(entry)
		}
	case "activity":
		if !cfg.TriggerOnActivity {
			return
		}
		for _, activity := range container.ActivityNotification {
			m.handleActivity(activity)
		}
	}
}

// resolveUser maps a player client identifier to the user watching on it,
// consulting the active sessions when the cache has no answer.
func (m *Manager) resolveUser(ctx context.Context, clientIdentifier string) (plex.User, bool) {
	if clientIdentifier == "" {
		return plex.User{}, false
	}
	if cached, ok := m.cache.GetUserClient(clientIdentifier); ok {
		return plex.User{ID: cached.UserID, Name: cached.Username}, true
	}

	sessions, err := m.client.SessionUsers(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list active sessions")
		return plex.User{}, false
	}
	for id, user := range sessions {
		m.cache.SetUserClient(id, user.ID, user.Name)
	}

	user, ok := sessions[clientIdentifier]
	return user, ok
}

// clientForUser returns a client acting with the given user's credentials.
// The server owner has no shared-user token; the admin client is the
// fallback for them and for any lookup failure.
func (m *Manager) clientForUser(ctx context.Context, userID string) *plex.Client {
	if userID == "" {
		return m.client
	}
	if token, ok := m.cache.GetUserToken(userID); ok {
		return m.client.WithToken(token)
	}

	machineID, ok := m.cache.GetMachineIdentifier()
	if !ok {
		id, err := m.client.MachineIdentifier(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to fetch server machine identifier")
			return m.client
		}
		m.cache.SetMachineIdentifier(id)
		machineID = id
	}

	token, err := m.client.UserToken(ctx, userID, machineID)
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("No shared-user token, using admin client")
		return m.client
	}
	m.cache.SetUserToken(userID, token)
	return m.client.WithToken(token)
}

func (m *Manager) recordHistory(userID, username string, episode *plex.Episode, tc *tracks.TrackChanges) {
	entry := &database.HistoryEntry{
		UserID:           userID,
		Username:         username,
		ShowTitle:        episode.GrandparentTitle,
		ShowRatingKey:    extractRatingKey(episode.GrandparentKey),
		EpisodeTitle:     episode.ShortName(),
		EpisodeRatingKey: episode.RatingKey,
		EventType:        string(tc.Event()),
		AudioTo:          tc.ReferenceAudio().DisplayName(),
		SubtitleTo:       tc.ReferenceSubtitle().DisplayName(),
		EpisodesUpdated:  updatedEpisodeCount(tc.Changes()),
	}
	if err := m.db.CreateHistory(entry); err != nil {
		log.Error().Err(err).Msg("Failed to record history entry")
	}
}

// extractRatingKey strips a metadata key like "/library/metadata/12345" (with
// an optional trailing path) down to its rating key.
func extractRatingKey(key string) string {
	key = strings.TrimPrefix(key, "/library/metadata/")
	if i := strings.IndexByte(key, '/'); i >= 0 {
		key = key[:i]
	}
	return key
}

// pickReferenceEpisode chooses the episode whose selection represents the
// user's preference: the most recently watched one, or the first episode when
// nothing has been watched yet.
func pickReferenceEpisode(episodes []*plex.Episode) *plex.Episode {
	if len(episodes) == 0 {
		return nil
	}
	var best *plex.Episode
	for _, episode := range episodes {
		if episode.ViewCount == 0 || episode.LastViewedAt == 0 {
			continue
		}
		if best == nil || episode.LastViewedAt > best.LastViewedAt {
			best = episode
		}
	}
	if best != nil {
		return best
	}
	return episodes[0]
}

// updatedEpisodeCount counts the distinct episodes touched by a change list.
func updatedEpisodeCount(changes []tracks.Change) int {
	seen := make(map[string]struct{})
	for _, change := range changes {
		seen[change.Episode.RatingKey] = struct{}{}
	}
	return len(seen)
}
