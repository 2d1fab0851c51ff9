// Package plex is the media server collaborator: stream, part and episode
// types plus the HTTP and WebSocket clients the track propagation engine
// talks to.
package plex

import (
	"errors"
	"fmt"
)

// ErrInvalidUserToken indicates a Plex user token is invalid or unauthorized.
var ErrInvalidUserToken = errors.New("plex user token invalid")

// ErrNotFound indicates the requested item does not exist on the server.
var ErrNotFound = errors.New("plex item not found")

// AudioStream represents a Plex audio stream
type AudioStream struct {
	ID                 int    `json:"id"`
	LanguageCode       string `json:"languageCode"`
	Codec              string `json:"codec"`
	Channels           int    `json:"channels"`
	AudioChannelLayout string `json:"audioChannelLayout"`
	Title              string `json:"title"`
	DisplayTitle       string `json:"displayTitle"`
	Selected           bool   `json:"selected"`
}

// SubtitleStream represents a Plex subtitle stream
type SubtitleStream struct {
	ID              int    `json:"id"`
	LanguageCode    string `json:"languageCode"`
	Codec           string `json:"codec"`
	Title           string `json:"title"`
	DisplayTitle    string `json:"displayTitle"`
	Forced          bool   `json:"forced"`
	HearingImpaired bool   `json:"hearingImpaired"`
	Selected        bool   `json:"selected"`
}

// MediaPart represents a single media file part with its streams
type MediaPart struct {
	ID              int              `json:"id"`
	Key             string           `json:"key"`
	AudioStreams    []AudioStream    `json:"audioStreams"`
	SubtitleStreams []SubtitleStream `json:"subtitleStreams"`
}

// Episode represents a Plex episode with the metadata the engine needs
type Episode struct {
	RatingKey        string      `json:"ratingKey"`
	Key              string      `json:"key"`
	Title            string      `json:"title"`
	GrandparentTitle string      `json:"grandparentTitle"` // Show title
	GrandparentKey   string      `json:"grandparentKey"`   // Show key
	ParentKey        string      `json:"parentKey"`        // Season key
	ParentIndex      int         `json:"parentIndex"`      // Season number
	Index            int         `json:"index"`            // Episode number
	AddedAt          int64       `json:"addedAt"`
	LastViewedAt     int64       `json:"lastViewedAt"`
	ViewCount        int         `json:"viewCount"`
	Parts            []MediaPart `json:"parts"`
}

// AudioStreams returns the audio streams of all parts, in part order.
func (e *Episode) AudioStreams() []AudioStream {
	var streams []AudioStream
	for i := range e.Parts {
		streams = append(streams, e.Parts[i].AudioStreams...)
	}
	return streams
}

// SubtitleStreams returns the subtitle streams of all parts, in part order.
func (e *Episode) SubtitleStreams() []SubtitleStream {
	var streams []SubtitleStream
	for i := range e.Parts {
		streams = append(streams, e.Parts[i].SubtitleStreams...)
	}
	return streams
}

// ShortName renders the episode as "Show (S01E02)".
func (e *Episode) ShortName() string {
	return fmt.Sprintf("%s (S%02dE%02d)", e.GrandparentTitle, e.ParentIndex, e.Index)
}

func (e *Episode) String() string {
	return e.ShortName()
}

// User represents a Plex user account
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
