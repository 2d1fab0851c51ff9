// Package cache holds the in-memory session state the event manager needs
// between WebSocket notifications: last seen stream selections, client to
// user mappings, user tokens and debounce timestamps.
package cache

import (
	"sync"
	"time"
)

// StreamSelection is the last seen audio/subtitle selection for an episode
type StreamSelection struct {
	AudioStreamID    int
	SubtitleStreamID int // 0 = no subtitle
	CachedAt         time.Time
}

// UserClient maps a client identifier to a user
type UserClient struct {
	UserID   string
	Username string
	CachedAt time.Time
}

type userToken struct {
	Token    string
	CachedAt time.Time
}

type machineIdentifier struct {
	ID       string
	CachedAt time.Time
}

// User tokens outlive the general cache horizon.
const tokenMaxAge = 12 * time.Hour

// Cache holds all in-memory caches. Safe for concurrent use.
type Cache struct {
	mu sync.RWMutex

	// sessionStates tracks session state (playing/paused/stopped) by session key
	sessionStates map[string]string

	// selections caches the last seen stream selection per userID:ratingKey
	selections map[string]*StreamSelection

	// userClients maps client identifiers to users
	userClients map[string]*UserClient

	// userTokens caches user access tokens by user ID
	userTokens map[string]*userToken

	// newlyAdded tracks recently added episodes by rating key
	newlyAdded map[string]time.Time

	// recentActivities deduplicates notifications per source:ratingKey
	recentActivities map[string]time.Time

	// lastProcessed debounces playing notifications per clientIdentifier:ratingKey
	lastProcessed map[string]time.Time

	machineIdentifier *machineIdentifier
}

// New creates an empty cache
func New() *Cache {
	return &Cache{
		sessionStates:    make(map[string]string),
		selections:       make(map[string]*StreamSelection),
		userClients:      make(map[string]*UserClient),
		userTokens:       make(map[string]*userToken),
		newlyAdded:       make(map[string]time.Time),
		recentActivities: make(map[string]time.Time),
		lastProcessed:    make(map[string]time.Time),
	}
}

// GetSessionState returns the cached session state for a session key
func (c *Cache) GetSessionState(sessionKey string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.sessionStates[sessionKey]
	return state, ok
}

// SetSessionState updates the cached session state. A stopped session is
// removed rather than stored.
func (c *Cache) SetSessionState(sessionKey, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state == "stopped" {
		delete(c.sessionStates, sessionKey)
	} else {
		c.sessionStates[sessionKey] = state
	}
}

// GetSelection returns the cached stream selection for an episode and user
func (c *Cache) GetSelection(userID, ratingKey string) (*StreamSelection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sel, ok := c.selections[selectionKey(userID, ratingKey)]
	return sel, ok
}

// SetSelection caches the stream selection for an episode and user
func (c *Cache) SetSelection(userID, ratingKey string, audioID, subtitleID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selections[selectionKey(userID, ratingKey)] = &StreamSelection{
		AudioStreamID:    audioID,
		SubtitleStreamID: subtitleID,
		CachedAt:         time.Now(),
	}
}

// GetUserClient returns the cached user for a client identifier
func (c *Cache) GetUserClient(clientIdentifier string) (*UserClient, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	user, ok := c.userClients[clientIdentifier]
	return user, ok
}

// SetUserClient caches the user for a client identifier
func (c *Cache) SetUserClient(clientIdentifier, userID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userClients[clientIdentifier] = &UserClient{
		UserID:   userID,
		Username: username,
		CachedAt: time.Now(),
	}
}

// GetUserToken returns the cached token for a user ID
func (c *Cache) GetUserToken(userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	token, ok := c.userTokens[userID]
	if !ok {
		return "", false
	}
	return token.Token, true
}

// SetUserToken caches the token for a user ID
func (c *Cache) SetUserToken(userID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userTokens[userID] = &userToken{
		Token:    token,
		CachedAt: time.Now(),
	}
}

// ClearUserToken removes the cached token for a user ID
func (c *Cache) ClearUserToken(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.userTokens, userID)
}

// GetMachineIdentifier returns the cached server machine identifier
func (c *Cache) GetMachineIdentifier() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.machineIdentifier == nil {
		return "", false
	}
	return c.machineIdentifier.ID, true
}

// SetMachineIdentifier caches the server machine identifier
func (c *Cache) SetMachineIdentifier(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.machineIdentifier = &machineIdentifier{
		ID:       id,
		CachedAt: time.Now(),
	}
}

// ShouldProcessPlaying reports whether enough time has passed since the last
// processed playing notification for this client/episode pair, recording the
// attempt when it has.
func (c *Cache) ShouldProcessPlaying(clientIdentifier, ratingKey string, minInterval time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := clientIdentifier + ":" + ratingKey
	lastTime, exists := c.lastProcessed[key]
	if !exists || time.Since(lastTime) >= minInterval {
		c.lastProcessed[key] = time.Now()
		return true
	}
	return false
}

// IsNewlyAdded reports whether an episode was marked as added within maxAge
func (c *Cache) IsNewlyAdded(ratingKey string, maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	addedAt, ok := c.newlyAdded[ratingKey]
	if !ok {
		return false
	}
	return time.Since(addedAt) < maxAge
}

// MarkNewlyAdded marks an episode as newly added
func (c *Cache) MarkNewlyAdded(ratingKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newlyAdded[ratingKey] = time.Now()
}

// HasRecentActivity reports whether a source/item pair fired within maxAge
func (c *Cache) HasRecentActivity(source, ratingKey string, maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	activityAt, ok := c.recentActivities[source+":"+ratingKey]
	if !ok {
		return false
	}
	return time.Since(activityAt) < maxAge
}

// MarkRecentActivity records that a source/item pair fired
func (c *Cache) MarkRecentActivity(source, ratingKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recentActivities[source+":"+ratingKey] = time.Now()
}

// CleanupExpired removes entries older than maxAge from all caches
func (c *Cache) CleanupExpired(maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	for key, sel := range c.selections {
		if now.Sub(sel.CachedAt) > maxAge {
			delete(c.selections, key)
		}
	}
	for key, user := range c.userClients {
		if now.Sub(user.CachedAt) > maxAge {
			delete(c.userClients, key)
		}
	}
	for key, token := range c.userTokens {
		if now.Sub(token.CachedAt) > tokenMaxAge {
			delete(c.userTokens, key)
		}
	}
	for key, addedAt := range c.newlyAdded {
		if now.Sub(addedAt) > maxAge {
			delete(c.newlyAdded, key)
		}
	}
	for key, activityAt := range c.recentActivities {
		if now.Sub(activityAt) > maxAge {
			delete(c.recentActivities, key)
		}
	}
	for key, processedAt := range c.lastProcessed {
		if now.Sub(processedAt) > maxAge {
			delete(c.lastProcessed, key)
		}
	}
}

// Clear removes all entries from all caches
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessionStates = make(map[string]string)
	c.selections = make(map[string]*StreamSelection)
	c.userClients = make(map[string]*UserClient)
	c.userTokens = make(map[string]*userToken)
	c.newlyAdded = make(map[string]time.Time)
	c.recentActivities = make(map[string]time.Time)
	c.lastProcessed = make(map[string]time.Time)
	c.machineIdentifier = nil
}

func selectionKey(userID, ratingKey string) string {
	return userID + ":" + ratingKey
}
