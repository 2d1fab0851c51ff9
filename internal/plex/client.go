package plex

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"autolingo/internal/httpclient"
)

const plexTVURL = "https://plex.tv"

// Client talks to a single Plex Media Server over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL using the given token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpclient.NewTraceClient("plex", timeout),
	}
}

// WithToken returns a copy of the client bound to a different access token.
// Used to act on the server as a specific user.
func (c *Client) WithToken(token string) *Client {
	if token == "" || token == c.token {
		return c
	}
	clone := *c
	clone.token = token
	return &clone
}

// metadataResponse represents the response from /library/metadata/{id}
type metadataResponse struct {
	MediaContainer metadataContainer `json:"MediaContainer"`
}

type metadataContainer struct {
	Size     int            `json:"size"`
	Metadata []wireMetadata `json:"Metadata"`
}

type wireMetadata struct {
	RatingKey        string      `json:"ratingKey"`
	Key              string      `json:"key"`
	Type             string      `json:"type"`
	Title            string      `json:"title"`
	GrandparentTitle string      `json:"grandparentTitle,omitempty"` // Show title
	GrandparentKey   string      `json:"grandparentKey,omitempty"`   // Show key
	ParentKey        string      `json:"parentKey,omitempty"`        // Season key
	ParentIndex      int         `json:"parentIndex,omitempty"`      // Season number
	Index            int         `json:"index,omitempty"`            // Episode number
	AddedAt          int64       `json:"addedAt"`
	LastViewedAt     int64       `json:"lastViewedAt,omitempty"`
	ViewCount        int         `json:"viewCount,omitempty"`
	Media            []wireMedia `json:"Media,omitempty"`
}

type wireMedia struct {
	ID   int        `json:"id"`
	Part []wirePart `json:"Part"`
}

type wirePart struct {
	ID     int          `json:"id"`
	Key    string       `json:"key"`
	Stream []wireStream `json:"Stream,omitempty"`
}

type wireStream struct {
	ID                 int    `json:"id"`
	StreamType         int    `json:"streamType"` // 1=video, 2=audio, 3=subtitle
	Selected           bool   `json:"selected"`
	LanguageCode       string `json:"languageCode,omitempty"`
	Codec              string `json:"codec,omitempty"`
	Channels           int    `json:"channels,omitempty"`
	AudioChannelLayout string `json:"audioChannelLayout,omitempty"`
	Title              string `json:"title,omitempty"`
	DisplayTitle       string `json:"displayTitle,omitempty"`
	Forced             bool   `json:"forced,omitempty"`
	HearingImpaired    bool   `json:"hearingImpaired,omitempty"`
}

// get performs a GET request against the server and decodes the JSON response.
func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrInvalidUserToken
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("plex returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Episode fetches episode metadata including all audio/subtitle streams.
func (c *Client) Episode(ctx context.Context, ratingKey string) (*Episode, error) {
	var resp metadataResponse
	if err := c.get(ctx, fmt.Sprintf("%s/library/metadata/%s", c.baseURL, ratingKey), &resp); err != nil {
		return nil, err
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return nil, fmt.Errorf("%w: rating key %s", ErrNotFound, ratingKey)
	}
	return convertEpisode(&resp.MediaContainer.Metadata[0]), nil
}

// Reload refreshes the episode's metadata and stream state in place.
func (c *Client) Reload(ctx context.Context, ep *Episode) error {
	fresh, err := c.Episode(ctx, ep.RatingKey)
	if err != nil {
		return err
	}
	*ep = *fresh
	return nil
}

// ShowEpisodes fetches all episodes of a show in (season, episode) order.
func (c *Client) ShowEpisodes(ctx context.Context, showKey string) ([]*Episode, error) {
	showKey = strings.TrimPrefix(showKey, "/library/metadata/")
	return c.episodeList(ctx, fmt.Sprintf("%s/library/metadata/%s/allLeaves", c.baseURL, showKey))
}

// SeasonEpisodes fetches the episodes of a season in episode order.
func (c *Client) SeasonEpisodes(ctx context.Context, seasonKey string) ([]*Episode, error) {
	seasonKey = strings.TrimPrefix(seasonKey, "/library/metadata/")
	return c.episodeList(ctx, fmt.Sprintf("%s/library/metadata/%s/children", c.baseURL, seasonKey))
}

func (c *Client) episodeList(ctx context.Context, listURL string) ([]*Episode, error) {
	var resp metadataResponse
	if err := c.get(ctx, listURL, &resp); err != nil {
		return nil, err
	}

	episodes := make([]*Episode, 0, len(resp.MediaContainer.Metadata))
	for i := range resp.MediaContainer.Metadata {
		episodes = append(episodes, convertEpisode(&resp.MediaContainer.Metadata[i]))
	}

	// The server usually returns natural order already; sort to make it a guarantee.
	sort.SliceStable(episodes, func(i, j int) bool {
		if episodes[i].ParentIndex != episodes[j].ParentIndex {
			return episodes[i].ParentIndex < episodes[j].ParentIndex
		}
		if episodes[i].Index != episodes[j].Index {
			return episodes[i].Index < episodes[j].Index
		}
		return episodes[i].RatingKey < episodes[j].RatingKey
	})

	return episodes, nil
}

// SetStreams sets the selected audio and/or subtitle streams for a media part.
// audioStreamID: the stream ID to set, or 0 to leave the audio selection alone.
// subtitleStreamID: the stream ID to set, 0 to disable subtitles, or -1 to
// leave the subtitle selection alone.
func (c *Client) SetStreams(ctx context.Context, partID, audioStreamID, subtitleStreamID int) error {
	params := url.Values{}
	if audioStreamID > 0 {
		params.Set("audioStreamID", fmt.Sprintf("%d", audioStreamID))
	}
	if subtitleStreamID >= 0 {
		params.Set("subtitleStreamID", fmt.Sprintf("%d", subtitleStreamID))
	}
	if len(params) == 0 {
		return nil
	}

	setURL := fmt.Sprintf("%s/library/parts/%d?%s", c.baseURL, partID, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, setURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrInvalidUserToken
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("plex returned status %d: %s", resp.StatusCode, string(body))
	}

	log.Debug().
		Int("partID", partID).
		Int("audioStreamID", audioStreamID).
		Int("subtitleStreamID", subtitleStreamID).
		Msg("Set stream selection")

	return nil
}

// SystemAccounts fetches all user accounts known to the server.
func (c *Client) SystemAccounts(ctx context.Context) ([]User, error) {
	var resp struct {
		MediaContainer struct {
			Account []struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"Account"`
		} `json:"MediaContainer"`
	}
	if err := c.get(ctx, c.baseURL+"/accounts", &resp); err != nil {
		return nil, err
	}

	users := make([]User, 0, len(resp.MediaContainer.Account))
	for _, acc := range resp.MediaContainer.Account {
		if acc.ID == 0 {
			// Account 0 is the server's managed "unknown" slot
			continue
		}
		users = append(users, User{ID: fmt.Sprintf("%d", acc.ID), Name: acc.Name})
	}
	return users, nil
}

// SessionUsers returns a mapping of player client identifiers to the users
// currently watching on them.
func (c *Client) SessionUsers(ctx context.Context) (map[string]User, error) {
	var resp struct {
		MediaContainer struct {
			Metadata []struct {
				User struct {
					ID    string `json:"id"`
					Title string `json:"title"`
				} `json:"User"`
				Player struct {
					MachineIdentifier string `json:"machineIdentifier"`
				} `json:"Player"`
			} `json:"Metadata"`
		} `json:"MediaContainer"`
	}
	if err := c.get(ctx, c.baseURL+"/status/sessions", &resp); err != nil {
		return nil, err
	}

	mapping := make(map[string]User)
	for _, session := range resp.MediaContainer.Metadata {
		if session.Player.MachineIdentifier != "" {
			mapping[session.Player.MachineIdentifier] = User{
				ID:   session.User.ID,
				Name: session.User.Title,
			}
		}
	}
	return mapping, nil
}

// MachineIdentifier fetches the server's unique machine identifier.
func (c *Client) MachineIdentifier(ctx context.Context) (string, error) {
	var resp struct {
		MediaContainer struct {
			MachineIdentifier string `json:"machineIdentifier"`
		} `json:"MediaContainer"`
	}
	if err := c.get(ctx, c.baseURL+"/identity", &resp); err != nil {
		return "", err
	}
	if resp.MediaContainer.MachineIdentifier == "" {
		return "", fmt.Errorf("server returned no machine identifier")
	}
	return resp.MediaContainer.MachineIdentifier, nil
}

// sharedUsersResponse is the plex.tv shared-users document (XML only endpoint).
type sharedUsersResponse struct {
	XMLName xml.Name `xml:"MediaContainer"`
	Users   []struct {
		ID      string `xml:"id,attr"`
		Title   string `xml:"title,attr"`
		Servers []struct {
			MachineIdentifier string `xml:"machineIdentifier,attr"`
			AccessToken       string `xml:"accessToken,attr"`
		} `xml:"Server"`
	} `xml:"User"`
}

// UserToken fetches the access token a shared user holds for the server with
// the given machine identifier. Requires the admin token.
func (c *Client) UserToken(ctx context.Context, userID, machineID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, plexTVURL+"/api/users", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrInvalidUserToken
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("plex.tv returned status %d: %s", resp.StatusCode, string(body))
	}

	var users sharedUsersResponse
	if err := xml.Unmarshal(body, &users); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	for _, user := range users.Users {
		if user.ID != userID {
			continue
		}
		for _, server := range user.Servers {
			if server.MachineIdentifier == machineID {
				return server.AccessToken, nil
			}
		}
	}
	return "", fmt.Errorf("no token for user %s on server %s", userID, machineID)
}

// convertEpisode converts wire metadata to an Episode.
func convertEpisode(meta *wireMetadata) *Episode {
	ep := &Episode{
		RatingKey:        meta.RatingKey,
		Key:              meta.Key,
		Title:            meta.Title,
		GrandparentTitle: meta.GrandparentTitle,
		GrandparentKey:   meta.GrandparentKey,
		ParentKey:        meta.ParentKey,
		ParentIndex:      meta.ParentIndex,
		Index:            meta.Index,
		AddedAt:          meta.AddedAt,
		LastViewedAt:     meta.LastViewedAt,
		ViewCount:        meta.ViewCount,
	}

	for _, media := range meta.Media {
		for _, part := range media.Part {
			mediaPart := MediaPart{
				ID:  part.ID,
				Key: part.Key,
			}
			for _, stream := range part.Stream {
				switch stream.StreamType {
				case 2: // Audio
					mediaPart.AudioStreams = append(mediaPart.AudioStreams, AudioStream{
						ID:                 stream.ID,
						LanguageCode:       stream.LanguageCode,
						Codec:              stream.Codec,
						Channels:           stream.Channels,
						AudioChannelLayout: stream.AudioChannelLayout,
						Title:              stream.Title,
						DisplayTitle:       stream.DisplayTitle,
						Selected:           stream.Selected,
					})
				case 3: // Subtitle
					mediaPart.SubtitleStreams = append(mediaPart.SubtitleStreams, SubtitleStream{
						ID:              stream.ID,
						LanguageCode:    stream.LanguageCode,
						Codec:           stream.Codec,
						Title:           stream.Title,
						DisplayTitle:    stream.DisplayTitle,
						Forced:          stream.Forced,
						HearingImpaired: stream.HearingImpaired,
						Selected:        stream.Selected,
					})
				}
			}
			ep.Parts = append(ep.Parts, mediaPart)
		}
	}

	return ep
}
