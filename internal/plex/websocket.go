package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Notification is a parsed WebSocket notification from the server.
type Notification struct {
	NotificationContainer struct {
		Type                         string                    `json:"type"`
		PlaySessionStateNotification []PlaySessionNotification `json:"PlaySessionStateNotification,omitempty"`
		TimelineEntry                []TimelineEntry           `json:"TimelineEntry,omitempty"`
		ActivityNotification         []ActivityNotification    `json:"ActivityNotification,omitempty"`
	} `json:"NotificationContainer"`
}

// PlaySessionNotification represents a playing session notification
type PlaySessionNotification struct {
	SessionKey       string `json:"sessionKey"`
	ClientIdentifier string `json:"clientIdentifier"`
	Key              string `json:"key"` // e.g., "/library/metadata/12345"
	RatingKey        string `json:"ratingKey"`
	ViewOffset       int64  `json:"viewOffset"`
	State            string `json:"state"` // playing, paused, stopped
}

// TimelineEntry represents a timeline notification entry
type TimelineEntry struct {
	ItemID        int    `json:"itemID"`
	Identifier    string `json:"identifier"`
	State         int    `json:"state"` // 5 = completed
	Type          int    `json:"type"`  // 4 = episode
	MetadataState string `json:"metadataState,omitempty"`
	MediaState    string `json:"mediaState,omitempty"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// ActivityNotification represents an activity notification
type ActivityNotification struct {
	Event    string `json:"event"`
	UUID     string `json:"uuid"`
	Activity struct {
		Type     string `json:"type"`
		Subtitle string `json:"subtitle"`
		Context  struct {
			Key string `json:"key"`
		} `json:"Context"`
	} `json:"Activity"`
}

// Timeline state and media type constants
const (
	TimelineStateCompleted = 5
	MediaTypeEpisode       = 4
)

// LibraryIdentifier is the timeline identifier for library items.
const LibraryIdentifier = "com.plexapp.plugins.library"

// NotificationHandler receives parsed WebSocket notifications.
type NotificationHandler func(Notification)

// Listen connects to the server's notification WebSocket and dispatches every
// parsed notification to handler. It reconnects with exponential backoff until
// the context is cancelled.
func (c *Client) Listen(ctx context.Context, handler NotificationHandler) error {
	const (
		initialBackoff = 5 * time.Second
		maxBackoff     = 5 * time.Minute
	)
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.listenOnce(ctx, handler)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log.Warn().
				Err(err).
				Dur("backoff", backoff).
				Msg("Plex WebSocket disconnected, reconnecting")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff = min(backoff*2, maxBackoff)
		} else {
			backoff = initialBackoff
		}
	}
}

// listenOnce establishes a single WebSocket connection and handles messages.
// Note: Plex doesn't handle standard WebSocket ping frames well, so none are
// sent; the server's own notification traffic keeps the connection alive.
func (c *Client) listenOnce(ctx context.Context, handler NotificationHandler) error {
	wsURL, err := c.websocketURL()
	if err != nil {
		return fmt.Errorf("failed to build WebSocket URL: %w", err)
	}

	log.Debug().Str("url", c.baseURL).Msg("Connecting to Plex WebSocket")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("WebSocket dial failed: %w", err)
	}
	defer conn.Close()

	log.Info().Msg("Connected to Plex WebSocket")

	readErrCh := make(chan error, 1)

	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}

			var notification Notification
			if err := json.Unmarshal(message, &notification); err != nil {
				log.Debug().
					Err(err).
					RawJSON("message", message).
					Msg("Failed to parse WebSocket message")
				continue
			}

			handler(notification)
		}
	}()

	select {
	case <-ctx.Done():
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return ctx.Err()
	case err := <-readErrCh:
		return err
	}
}

// websocketURL constructs the server's notification WebSocket URL.
func (c *Client) websocketURL() (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}

	parsed.Path = "/:/websockets/notifications"

	q := parsed.Query()
	q.Set("X-Plex-Token", c.token)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}
