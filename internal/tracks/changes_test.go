package tracks

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"autolingo/internal/plex"
)

type setCall struct {
	partID     int
	audioID    int
	subtitleID int
}

type fakeClient struct {
	show      []*plex.Episode
	season    []*plex.Episode
	showErr   error
	seasonErr error
	reloadErr map[string]error
	setErr    map[int]error

	showCalls   int
	seasonCalls int
	setCalls    []setCall
}

func (f *fakeClient) ShowEpisodes(ctx context.Context, showKey string) ([]*plex.Episode, error) {
	f.showCalls++
	return f.show, f.showErr
}

func (f *fakeClient) SeasonEpisodes(ctx context.Context, seasonKey string) ([]*plex.Episode, error) {
	f.seasonCalls++
	return f.season, f.seasonErr
}

func (f *fakeClient) Reload(ctx context.Context, ep *plex.Episode) error {
	if err, ok := f.reloadErr[ep.RatingKey]; ok {
		return err
	}
	return nil
}

func (f *fakeClient) SetStreams(ctx context.Context, partID, audioStreamID, subtitleStreamID int) error {
	f.setCalls = append(f.setCalls, setCall{partID, audioStreamID, subtitleStreamID})
	if err, ok := f.setErr[partID]; ok {
		return err
	}
	return nil
}

func makeEpisode(ratingKey string, season, episode int, parts ...plex.MediaPart) *plex.Episode {
	return &plex.Episode{
		RatingKey:        ratingKey,
		Key:              "/library/metadata/" + ratingKey,
		Title:            fmt.Sprintf("Episode %d", episode),
		GrandparentTitle: "Dark",
		GrandparentKey:   "/library/metadata/100",
		ParentKey:        fmt.Sprintf("/library/metadata/%d", 100+season),
		ParentIndex:      season,
		Index:            episode,
		Parts:            parts,
	}
}

// referenceEpisode has eng AAC 5.1 audio and an eng srt subtitle selected.
func referenceEpisode() *plex.Episode {
	return makeEpisode("1", 1, 2, plex.MediaPart{
		ID: 500,
		AudioStreams: []plex.AudioStream{
			{ID: 1, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Selected: true},
			{ID: 2, LanguageCode: "fra", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1"},
		},
		SubtitleStreams: []plex.SubtitleStream{
			{ID: 3, LanguageCode: "eng", Codec: "srt", Selected: true},
		},
	})
}

func TestEpisodesToUpdate(t *testing.T) {
	all := []*plex.Episode{
		makeEpisode("10", 1, 1),
		makeEpisode("11", 1, 2),
		makeEpisode("12", 1, 3),
		makeEpisode("13", 2, 1),
	}

	tests := []struct {
		name     string
		level    UpdateLevel
		strategy UpdateStrategy
		want     []string
	}{
		{"show all", UpdateLevelShow, UpdateStrategyAll, []string{"10", "11", "12", "13"}},
		{"show next", UpdateLevelShow, UpdateStrategyNext, []string{"12", "13"}},
		{"season all", UpdateLevelSeason, UpdateStrategyAll, []string{"10", "11", "12", "13"}},
		{"season next", UpdateLevelSeason, UpdateStrategyNext, []string{"12", "13"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{show: all, season: all}
			tc := NewTrackChanges(client, "alice", referenceEpisode(), EventPlay)

			episodes, err := tc.EpisodesToUpdate(context.Background(), tt.level, tt.strategy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got []string
			for _, ep := range episodes {
				got = append(got, ep.RatingKey)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got episodes %v, want %v", got, tt.want)
			}
			if tt.level == UpdateLevelSeason && client.seasonCalls != 1 {
				t.Fatalf("expected one season fetch, got %d", client.seasonCalls)
			}
			if tt.level == UpdateLevelShow && client.showCalls != 1 {
				t.Fatalf("expected one show fetch, got %d", client.showCalls)
			}
		})
	}
}

func TestEpisodesToUpdate_FetchError(t *testing.T) {
	client := &fakeClient{showErr: errors.New("server unreachable")}
	tc := NewTrackChanges(client, "alice", referenceEpisode(), EventPlay)

	if _, err := tc.EpisodesToUpdate(context.Background(), UpdateLevelShow, UpdateStrategyAll); err == nil {
		t.Fatal("expected structural fetch error to propagate")
	}
}

func TestEpisodesToUpdate_MissingKeys(t *testing.T) {
	reference := referenceEpisode()
	reference.GrandparentKey = ""
	reference.ParentKey = ""
	tc := NewTrackChanges(&fakeClient{}, "alice", reference, EventPlay)

	if _, err := tc.EpisodesToUpdate(context.Background(), UpdateLevelShow, UpdateStrategyAll); err == nil {
		t.Fatal("expected error for missing show key")
	}
	if _, err := tc.EpisodesToUpdate(context.Background(), UpdateLevelSeason, UpdateStrategyAll); err == nil {
		t.Fatal("expected error for missing season key")
	}
}

func TestCompute_AudioAndSubtitleChanges(t *testing.T) {
	target := makeEpisode("20", 1, 3, plex.MediaPart{
		ID: 600,
		AudioStreams: []plex.AudioStream{
			// Selected on the wrong language; the eng stream should win.
			{ID: 10, LanguageCode: "fra", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Title: "a", Selected: true},
			{ID: 11, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Title: "b"},
		},
		SubtitleStreams: []plex.SubtitleStream{
			{ID: 12, LanguageCode: "fra", Codec: "srt", Selected: true},
			{ID: 13, LanguageCode: "eng", Codec: "srt"},
		},
	})

	client := &fakeClient{}
	tc := NewTrackChanges(client, "alice", referenceEpisode(), EventPlay)
	tc.Compute(context.Background(), []*plex.Episode{target})

	if !tc.Computed() {
		t.Fatal("expected Computed() after Compute")
	}
	changes := tc.Changes()
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Kind != KindAudio || changes[0].Audio.ID != 11 {
		t.Fatalf("expected audio change to stream 11 first, got %+v", changes[0])
	}
	if changes[1].Kind != KindSubtitle || changes[1].Subtitle == nil || changes[1].Subtitle.ID != 13 {
		t.Fatalf("expected subtitle change to stream 13 second, got %+v", changes[1])
	}
}

func TestCompute_NoAudioChangeWhenNoneSelected(t *testing.T) {
	// No selected audio on the part means nothing to move off of.
	target := makeEpisode("20", 1, 3, plex.MediaPart{
		ID: 600,
		AudioStreams: []plex.AudioStream{
			{ID: 10, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1"},
		},
	})

	tc := NewTrackChanges(&fakeClient{}, "alice", referenceEpisode(), EventPlay)
	tc.Compute(context.Background(), []*plex.Episode{target})

	for _, change := range tc.Changes() {
		if change.Kind == KindAudio {
			t.Fatalf("unexpected audio change: %+v", change)
		}
	}
}

func TestCompute_SubtitleClear(t *testing.T) {
	// Reference has no selected subtitle and no forced fallback exists, so the
	// target's selected subtitle gets cleared.
	reference := referenceEpisode()
	reference.Parts[0].SubtitleStreams[0].Selected = false

	target := makeEpisode("20", 1, 3, plex.MediaPart{
		ID: 600,
		AudioStreams: []plex.AudioStream{
			{ID: 10, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Selected: true},
		},
		SubtitleStreams: []plex.SubtitleStream{
			{ID: 12, LanguageCode: "fra", Codec: "srt", Selected: true},
		},
	})

	tc := NewTrackChanges(&fakeClient{}, "alice", reference, EventPlay)
	tc.Compute(context.Background(), []*plex.Episode{target})

	changes := tc.Changes()
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Kind != KindSubtitle || changes[0].Subtitle != nil {
		t.Fatalf("expected a subtitle clear, got %+v", changes[0])
	}
}

func TestCompute_CommentarySuppressesSubtitleChange(t *testing.T) {
	// The target is deliberately left on a commentary track the reference
	// cannot match; its subtitles must be left alone.
	target := makeEpisode("20", 1, 3, plex.MediaPart{
		ID: 600,
		AudioStreams: []plex.AudioStream{
			{ID: 10, LanguageCode: "fra", Title: "Director Commentary", Selected: true},
			{ID: 11, LanguageCode: "fra", Title: "Main"},
		},
		SubtitleStreams: []plex.SubtitleStream{
			{ID: 12, LanguageCode: "eng", Codec: "srt"},
		},
	})

	tc := NewTrackChanges(&fakeClient{}, "alice", referenceEpisode(), EventPlay)
	tc.Compute(context.Background(), []*plex.Episode{target})

	if tc.HasChanges() {
		t.Fatalf("expected no changes, got %+v", tc.Changes())
	}
}

func TestCompute_ReloadFailureSkipsEpisode(t *testing.T) {
	broken := makeEpisode("20", 1, 3)
	working := makeEpisode("21", 1, 4, plex.MediaPart{
		ID: 601,
		AudioStreams: []plex.AudioStream{
			{ID: 10, LanguageCode: "eng", Codec: "ac3", Channels: 6, AudioChannelLayout: "5.1", Title: "a", Selected: true},
			{ID: 11, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Title: "b"},
		},
	})

	client := &fakeClient{reloadErr: map[string]error{"20": errors.New("timeout")}}
	tc := NewTrackChanges(client, "alice", referenceEpisode(), EventPlay)
	tc.Compute(context.Background(), []*plex.Episode{broken, working})

	changes := tc.Changes()
	if len(changes) != 1 {
		t.Fatalf("expected 1 change from the working episode, got %d", len(changes))
	}
	if changes[0].Episode.RatingKey != "21" {
		t.Fatalf("change recorded against wrong episode: %s", changes[0].Episode.RatingKey)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	target := makeEpisode("20", 1, 3, plex.MediaPart{
		ID: 600,
		AudioStreams: []plex.AudioStream{
			{ID: 10, LanguageCode: "eng", Codec: "ac3", Channels: 6, AudioChannelLayout: "5.1", Title: "a", Selected: true},
			{ID: 11, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Title: "b"},
		},
	})

	tc := NewTrackChanges(&fakeClient{}, "alice", referenceEpisode(), EventPlay)
	tc.Compute(context.Background(), []*plex.Episode{target})
	first := append([]Change(nil), tc.Changes()...)

	tc.Compute(context.Background(), []*plex.Episode{target})
	if !reflect.DeepEqual(first, tc.Changes()) {
		t.Fatalf("second Compute diverged:\nfirst:  %+v\nsecond: %+v", first, tc.Changes())
	}
}

func TestApply(t *testing.T) {
	audio := &plex.AudioStream{ID: 11}
	subtitle := &plex.SubtitleStream{ID: 13}
	episode := makeEpisode("20", 1, 3, plex.MediaPart{ID: 600})
	part := &episode.Parts[0]

	client := &fakeClient{}
	tc := NewTrackChanges(client, "alice", referenceEpisode(), EventPlay)
	tc.changes = []Change{
		{Episode: episode, Part: part, Kind: KindAudio, Audio: audio},
		{Episode: episode, Part: part, Kind: KindSubtitle, Subtitle: subtitle},
		{Episode: episode, Part: part, Kind: KindSubtitle},
	}

	tc.Apply(context.Background())

	want := []setCall{
		{600, 11, -1}, // audio only, leave subtitles untouched
		{600, 0, 13},  // subtitle only, leave audio untouched
		{600, 0, 0},   // clear subtitle selection
	}
	if !reflect.DeepEqual(client.setCalls, want) {
		t.Fatalf("got calls %+v, want %+v", client.setCalls, want)
	}
}

func TestApply_EmptyIsNoOp(t *testing.T) {
	client := &fakeClient{}
	tc := NewTrackChanges(client, "alice", referenceEpisode(), EventPlay)
	tc.Compute(context.Background(), nil)
	tc.Apply(context.Background())

	if len(client.setCalls) != 0 {
		t.Fatalf("expected no server calls, got %+v", client.setCalls)
	}
}

func TestApply_FailuresDoNotStopRemaining(t *testing.T) {
	episode := makeEpisode("20", 1, 3, plex.MediaPart{ID: 600}, plex.MediaPart{ID: 601})

	client := &fakeClient{setErr: map[int]error{600: errors.New("server error")}}
	tc := NewTrackChanges(client, "alice", referenceEpisode(), EventPlay)
	tc.changes = []Change{
		{Episode: episode, Part: &episode.Parts[0], Kind: KindAudio, Audio: &plex.AudioStream{ID: 11}},
		{Episode: episode, Part: &episode.Parts[1], Kind: KindAudio, Audio: &plex.AudioStream{ID: 12}},
	}

	tc.Apply(context.Background())

	if len(client.setCalls) != 2 {
		t.Fatalf("expected both changes attempted, got %+v", client.setCalls)
	}
}

func TestSummary(t *testing.T) {
	changedPart := func(id int) plex.MediaPart {
		return plex.MediaPart{
			ID: id,
			AudioStreams: []plex.AudioStream{
				{ID: id*10 + 1, LanguageCode: "eng", Codec: "ac3", Channels: 6, AudioChannelLayout: "5.1", Title: "a", Selected: true},
				{ID: id*10 + 2, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Title: "b"},
			},
		}
	}
	unchangedPart := func(id int) plex.MediaPart {
		return plex.MediaPart{
			ID: id,
			AudioStreams: []plex.AudioStream{
				{ID: id*10 + 1, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Selected: true},
			},
		}
	}

	// Five candidates S01E03..S01E07, four of them needing an audio change.
	episodes := []*plex.Episode{
		makeEpisode("20", 1, 3, changedPart(600)),
		makeEpisode("21", 1, 4, changedPart(601)),
		makeEpisode("22", 1, 5, unchangedPart(602)),
		makeEpisode("23", 1, 6, changedPart(603)),
		makeEpisode("24", 1, 7, changedPart(604)),
	}

	tc := NewTrackChanges(&fakeClient{}, "alice", referenceEpisode(), EventPlay)
	tc.Compute(context.Background(), episodes)

	if tc.Title() != "Dark" {
		t.Fatalf("got title %q, want %q", tc.Title(), "Dark")
	}
	description := tc.Description()
	for _, want := range []string{
		"Show: Dark",
		"User: alice",
		"Updated episodes: 4/5 (S01E03 - S01E07)",
	} {
		if !strings.Contains(description, want) {
			t.Fatalf("description missing %q:\n%s", want, description)
		}
	}
	if !strings.Contains(tc.InlineDescription(), " | ") {
		t.Fatalf("inline description not flattened: %q", tc.InlineDescription())
	}
}

func TestSummary_SingleEpisodeRange(t *testing.T) {
	episodes := []*plex.Episode{makeEpisode("20", 2, 5)}
	tc := NewTrackChanges(&fakeClient{}, "alice", referenceEpisode(), EventPlay)
	tc.Compute(context.Background(), episodes)

	if !strings.Contains(tc.Description(), "0/1 (S02E05)") {
		t.Fatalf("expected collapsed range, got:\n%s", tc.Description())
	}
}

func TestSummary_EmptyScope(t *testing.T) {
	tc := NewTrackChanges(&fakeClient{}, "alice", referenceEpisode(), EventPlay)
	tc.Compute(context.Background(), nil)

	if tc.Title() != "" || tc.Description() != "" {
		t.Fatalf("expected empty summary, got title %q description %q", tc.Title(), tc.Description())
	}
}

func TestNewOrUpdatedTrackChanges(t *testing.T) {
	episode := makeEpisode("20", 1, 3, plex.MediaPart{
		ID: 600,
		AudioStreams: []plex.AudioStream{
			{ID: 10, LanguageCode: "eng", Codec: "ac3", Channels: 6, AudioChannelLayout: "5.1", Title: "a", Selected: true},
			{ID: 11, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Title: "b"},
		},
	})

	client := &fakeClient{}
	n := NewOrUpdated(EventNewEpisode, true)
	n.ChangeTrackForUser(context.Background(), client, "alice", referenceEpisode(), episode)
	n.ChangeTrackForUser(context.Background(), client, "bob", referenceEpisode(), episode)

	if !n.HasChanges() {
		t.Fatal("expected changes for at least one user")
	}
	if len(n.UserChanges()) != 2 {
		t.Fatalf("expected 2 user passes, got %d", len(n.UserChanges()))
	}
	if want := "New: Dark (S01E03)"; n.Title() != want {
		t.Fatalf("got title %q, want %q", n.Title(), want)
	}
	if !strings.Contains(n.Description(), "Status: New episode") {
		t.Fatalf("unexpected description:\n%s", n.Description())
	}
	if len(client.setCalls) == 0 {
		t.Fatal("expected changes applied to the server")
	}
}
