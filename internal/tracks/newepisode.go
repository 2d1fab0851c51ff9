package tracks

import (
	"context"
	"fmt"
	"strings"

	"autolingo/internal/plex"
)

// NewOrUpdatedTrackChanges drives one TrackChanges pass per user for a single
// new or updated episode, aggregating a combined summary.
type NewOrUpdatedTrackChanges struct {
	event EventType
	isNew bool

	episode      *plex.Episode
	trackChanges []*TrackChanges
	title        string
	description  string
}

// NewOrUpdated creates the multi-user aggregate for a new (isNew=true) or
// updated episode event.
func NewOrUpdated(event EventType, isNew bool) *NewOrUpdatedTrackChanges {
	return &NewOrUpdatedTrackChanges{event: event, isNew: isNew}
}

// Event returns what triggered this aggregate.
func (n *NewOrUpdatedTrackChanges) Event() EventType { return n.event }

// Title returns the rendered summary title.
func (n *NewOrUpdatedTrackChanges) Title() string { return n.title }

// Description returns the rendered multi-line summary.
func (n *NewOrUpdatedTrackChanges) Description() string { return n.description }

// InlineDescription returns the summary as a single line.
func (n *NewOrUpdatedTrackChanges) InlineDescription() string {
	return strings.ReplaceAll(n.description, "\n", " | ")
}

// EpisodeName renders the processed episode as "Show (S01E02)".
func (n *NewOrUpdatedTrackChanges) EpisodeName() string {
	if n.episode == nil {
		return ""
	}
	return n.episode.ShortName()
}

// HasChanges reports whether any user's pass produced changes.
func (n *NewOrUpdatedTrackChanges) HasChanges() bool {
	for _, tc := range n.trackChanges {
		if tc.HasChanges() {
			return true
		}
	}
	return false
}

// UserChanges returns the per-user TrackChanges passes run so far.
func (n *NewOrUpdatedTrackChanges) UserChanges() []*TrackChanges { return n.trackChanges }

// ChangeTrackForUser computes and applies track changes for one user on the
// event's episode, using that user's reference episode. The client must act
// with the user's credentials.
func (n *NewOrUpdatedTrackChanges) ChangeTrackForUser(ctx context.Context, client MediaClient, username string, reference, episode *plex.Episode) {
	n.episode = episode
	trackChanges := NewTrackChanges(client, username, reference, n.event)
	trackChanges.Compute(ctx, []*plex.Episode{episode})
	trackChanges.Apply(ctx)
	n.trackChanges = append(n.trackChanges, trackChanges)
	n.updateSummary()
}

func (n *NewOrUpdatedTrackChanges) updateSummary() {
	if len(n.trackChanges) == 0 {
		n.title = ""
		n.description = ""
		n.episode = nil
		return
	}
	eventStr := "Updated"
	if n.isNew {
		eventStr = "New"
	}
	n.title = fmt.Sprintf("%s: %s", eventStr, n.EpisodeName())
	n.description = fmt.Sprintf(
		"Episode: %s\nStatus: %s episode\nUpdated for all users",
		n.EpisodeName(),
		eventStr,
	)
}
