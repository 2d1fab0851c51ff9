package tracks

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"autolingo/internal/plex"
)

// EventType identifies what triggered a track-change computation
type EventType string

const (
	EventPlay       EventType = "play"
	EventNewEpisode EventType = "new_episode"
	EventUpdated    EventType = "updated_episode"
	EventScheduler  EventType = "scheduler"
)

// UpdateLevel controls which episodes are in scope
type UpdateLevel string

const (
	UpdateLevelShow   UpdateLevel = "show"
	UpdateLevelSeason UpdateLevel = "season"
)

// UpdateStrategy controls which in-scope episodes get updated
type UpdateStrategy string

const (
	UpdateStrategyAll  UpdateStrategy = "all"
	UpdateStrategyNext UpdateStrategy = "next"
)

// StreamKind distinguishes audio from subtitle changes
type StreamKind int

const (
	KindAudio StreamKind = iota
	KindSubtitle
)

func (k StreamKind) String() string {
	if k == KindAudio {
		return "audio"
	}
	return "subtitle"
}

// Change is a single pending track change on one part of one episode.
// A subtitle change with a nil Subtitle clears the part's subtitle selection.
type Change struct {
	Episode  *plex.Episode
	Part     *plex.MediaPart
	Kind     StreamKind
	Audio    *plex.AudioStream
	Subtitle *plex.SubtitleStream
}

// MediaClient is the slice of the Plex client the engine needs. Timeouts and
// cancellation are the caller's responsibility via ctx.
type MediaClient interface {
	ShowEpisodes(ctx context.Context, showKey string) ([]*plex.Episode, error)
	SeasonEpisodes(ctx context.Context, seasonKey string) ([]*plex.Episode, error)
	Reload(ctx context.Context, ep *plex.Episode) error
	SetStreams(ctx context.Context, partID, audioStreamID, subtitleStreamID int) error
}

// TrackChanges computes and applies track changes that propagate one user's
// selection on a reference episode to other episodes. An instance is
// single-use: Compute, then Apply.
type TrackChanges struct {
	client    MediaClient
	username  string
	event     EventType
	reference *plex.Episode
	audio     *plex.AudioStream
	subtitle  *plex.SubtitleStream

	changes     []Change
	computed    bool
	title       string
	description string

	log zerolog.Logger
}

// NewTrackChanges captures the reference episode's current selection for the
// given user. The client must already act with that user's credentials.
func NewTrackChanges(client MediaClient, username string, reference *plex.Episode, event EventType) *TrackChanges {
	audio, subtitle := SelectedStreams(reference)
	return &TrackChanges{
		client:    client,
		username:  username,
		event:     event,
		reference: reference,
		audio:     audio,
		subtitle:  subtitle,
		log:       log.With().Str("user", username).Str("show", reference.GrandparentTitle).Logger(),
	}
}

// Username returns the user the changes are computed for.
func (t *TrackChanges) Username() string { return t.username }

// Event returns what triggered this computation.
func (t *TrackChanges) Event() EventType { return t.event }

// Computed reports whether Compute has run.
func (t *TrackChanges) Computed() bool { return t.computed }

// HasChanges reports whether any change was accumulated.
func (t *TrackChanges) HasChanges() bool { return len(t.changes) > 0 }

// ChangeCount returns the number of accumulated changes.
func (t *TrackChanges) ChangeCount() int { return len(t.changes) }

// Changes returns the accumulated change list in application order.
func (t *TrackChanges) Changes() []Change { return t.changes }

// Title returns the rendered summary title.
func (t *TrackChanges) Title() string { return t.title }

// Description returns the rendered multi-line summary.
func (t *TrackChanges) Description() string { return t.description }

// InlineDescription returns the summary as a single line.
func (t *TrackChanges) InlineDescription() string {
	return strings.ReplaceAll(t.description, "\n", " | ")
}

// ReferenceName renders the reference episode as "Show (S01E02)".
func (t *TrackChanges) ReferenceName() string { return t.reference.ShortName() }

// ReferenceAudio returns the captured reference audio stream, or nil.
func (t *TrackChanges) ReferenceAudio() *plex.AudioStream { return t.audio }

// ReferenceSubtitle returns the captured reference subtitle stream, or nil.
func (t *TrackChanges) ReferenceSubtitle() *plex.SubtitleStream { return t.subtitle }

// EpisodesToUpdate expands the (level, strategy) pair into the ordered list
// of candidate episodes. An empty result is valid and yields no changes.
func (t *TrackChanges) EpisodesToUpdate(ctx context.Context, level UpdateLevel, strategy UpdateStrategy) ([]*plex.Episode, error) {
	var (
		episodes []*plex.Episode
		err      error
	)
	switch level {
	case UpdateLevelSeason:
		if t.reference.ParentKey == "" {
			return nil, fmt.Errorf("reference episode %s has no season key", t.reference.ShortName())
		}
		episodes, err = t.client.SeasonEpisodes(ctx, t.reference.ParentKey)
	default: // show
		if t.reference.GrandparentKey == "" {
			return nil, fmt.Errorf("reference episode %s has no show key", t.reference.ShortName())
		}
		episodes, err = t.client.ShowEpisodes(ctx, t.reference.GrandparentKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch episodes in scope: %w", err)
	}

	if strategy == UpdateStrategyNext {
		var next []*plex.Episode
		for _, episode := range episodes {
			if t.isEpisodeAfter(episode) {
				next = append(next, episode)
			}
		}
		episodes = next
	}
	return episodes, nil
}

// isEpisodeAfter reports whether episode comes strictly after the reference
// in (season, episode) order.
func (t *TrackChanges) isEpisodeAfter(episode *plex.Episode) bool {
	return t.reference.ParentIndex < episode.ParentIndex ||
		(t.reference.ParentIndex == episode.ParentIndex && t.reference.Index < episode.Index)
}

// Compute builds the ordered change list for the given candidate episodes.
// Episodes that fail to reload are logged and skipped; a partial change list
// is a normal degraded outcome.
func (t *TrackChanges) Compute(ctx context.Context, episodes []*plex.Episode) {
	t.log.Debug().
		Str("reference", t.reference.ShortName()).
		Int("candidates", len(episodes)).
		Msg("Checking track updates")

	t.changes = nil
	for _, episode := range episodes {
		if err := t.client.Reload(ctx, episode); err != nil {
			t.log.Error().Err(err).Str("episode", episode.ShortName()).Msg("Failed to reload episode, skipping")
			continue
		}
		for i := range episode.Parts {
			t.computePart(episode, &episode.Parts[i])
		}
	}

	t.updateSummary(episodes)
	t.computed = true
}

func (t *TrackChanges) computePart(episode *plex.Episode, part *plex.MediaPart) {
	currentAudio, currentSubtitle := SelectedPartStreams(part)

	matchingAudio := MatchAudioStream(t.audio, part.AudioStreams)
	if currentAudio != nil && matchingAudio != nil && matchingAudio.ID != currentAudio.ID {
		t.changes = append(t.changes, Change{Episode: episode, Part: part, Kind: KindAudio, Audio: matchingAudio})
	}

	matchingSubtitle := MatchSubtitleStream(t.subtitle, t.audio, part.SubtitleStreams)
	if currentSubtitle != nil && matchingSubtitle == nil {
		t.changes = append(t.changes, Change{Episode: episode, Part: part, Kind: KindSubtitle})
	}
	if matchingSubtitle != nil && (currentSubtitle == nil || matchingSubtitle.ID != currentSubtitle.ID) {
		// A part left on an unmatched commentary track is a deliberate user
		// choice; leave its subtitles alone.
		if currentAudio != nil && isCommentary(currentAudio.Title) && matchingAudio == nil {
			t.log.Debug().
				Str("episode", episode.ShortName()).
				Msg("Skipping subtitle change due to commentary track")
			return
		}
		t.changes = append(t.changes, Change{Episode: episode, Part: part, Kind: KindSubtitle, Subtitle: matchingSubtitle})
	}
}

// Apply executes the accumulated changes in order. Individual failures are
// logged and do not stop the remaining changes. Compute must run before each
// Apply.
func (t *TrackChanges) Apply(ctx context.Context) {
	if !t.HasChanges() {
		t.log.Debug().Msg("No track changes to perform")
		return
	}
	t.log.Debug().Int("changes", len(t.changes)).Msg("Applying track changes")

	for _, change := range t.changes {
		var err error
		switch {
		case change.Kind == KindAudio:
			err = t.client.SetStreams(ctx, change.Part.ID, change.Audio.ID, -1)
		case change.Subtitle == nil:
			err = t.client.SetStreams(ctx, change.Part.ID, 0, 0)
		default:
			err = t.client.SetStreams(ctx, change.Part.ID, 0, change.Subtitle.ID)
		}
		if err != nil {
			t.log.Warn().
				Err(err).
				Str("episode", change.Episode.ShortName()).
				Str("kind", change.Kind.String()).
				Msg("Failed to apply track change")
		}
	}
}

// updateSummary renders the title and description from the final change list.
func (t *TrackChanges) updateSummary(episodes []*plex.Episode) {
	if len(episodes) == 0 {
		t.title = ""
		t.description = ""
		return
	}

	minSeason, maxSeason := episodes[0].ParentIndex, episodes[0].ParentIndex
	for _, episode := range episodes {
		if episode.ParentIndex < minSeason {
			minSeason = episode.ParentIndex
		}
		if episode.ParentIndex > maxSeason {
			maxSeason = episode.ParentIndex
		}
	}
	minEpisode, maxEpisode := -1, -1
	for _, episode := range episodes {
		if episode.ParentIndex == minSeason && (minEpisode == -1 || episode.Index < minEpisode) {
			minEpisode = episode.Index
		}
		if episode.ParentIndex == maxSeason && (maxEpisode == -1 || episode.Index > maxEpisode) {
			maxEpisode = episode.Index
		}
	}

	fromStr := fmt.Sprintf("S%02dE%02d", minSeason, minEpisode)
	toStr := fmt.Sprintf("S%02dE%02d", maxSeason, maxEpisode)
	rangeStr := fromStr
	if fromStr != toStr {
		rangeStr = fromStr + " - " + toStr
	}

	updated := make(map[string]struct{})
	for _, change := range t.changes {
		updated[change.Episode.RatingKey] = struct{}{}
	}

	t.title = t.reference.GrandparentTitle
	t.description = fmt.Sprintf(
		"Show: %s\nUser: %s\nAudio: %s\nSubtitles: %s\nUpdated episodes: %d/%d (%s)",
		t.reference.GrandparentTitle,
		t.username,
		t.audio.DisplayName(),
		t.subtitle.DisplayName(),
		len(updated),
		len(episodes),
		rangeStr,
	)
}
