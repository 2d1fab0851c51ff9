package tracks

import (
	"testing"

	"autolingo/internal/plex"
)

func TestMatchAudioStream_LanguageFilter(t *testing.T) {
	reference := &plex.AudioStream{ID: 1, LanguageCode: "eng", Codec: "aac", Channels: 6}
	candidates := []plex.AudioStream{
		{ID: 10, LanguageCode: "fra", Codec: "aac", Channels: 6, Title: "a"},
		{ID: 11, LanguageCode: "jpn", Codec: "aac", Channels: 6, Title: "b"},
	}

	if got := MatchAudioStream(reference, candidates); got != nil {
		t.Fatalf("expected no match across languages, got stream %d", got.ID)
	}
}

func TestMatchAudioStream_NeverCrossesLanguage(t *testing.T) {
	reference := &plex.AudioStream{ID: 1, LanguageCode: "eng", Codec: "aac"}
	candidates := []plex.AudioStream{
		{ID: 10, LanguageCode: "eng", Codec: "ac3", Title: "x"},
		{ID: 11, LanguageCode: "fra", Codec: "aac", Title: "y"},
		{ID: 12, LanguageCode: "eng", Codec: "aac", Title: "z"},
	}

	got := MatchAudioStream(reference, candidates)
	if got == nil {
		t.Fatal("expected a match")
	}
	if got.LanguageCode != reference.LanguageCode {
		t.Fatalf("matched stream has language %q, want %q", got.LanguageCode, reference.LanguageCode)
	}
}

func TestMatchAudioStream_NilReference(t *testing.T) {
	candidates := []plex.AudioStream{{ID: 10, LanguageCode: "eng"}}
	if got := MatchAudioStream(nil, candidates); got != nil {
		t.Fatalf("expected nil for nil reference, got stream %d", got.ID)
	}
}

func TestMatchAudioStream_SingleCandidateSkipsScoring(t *testing.T) {
	// The lone surviving candidate wins even though it scores zero.
	reference := &plex.AudioStream{ID: 1, LanguageCode: "eng", Codec: "aac", AudioChannelLayout: "5.1", Title: "Main"}
	candidates := []plex.AudioStream{
		{ID: 10, LanguageCode: "eng", Codec: "mp2", AudioChannelLayout: "stereo", Title: "Other"},
		{ID: 11, LanguageCode: "fra", Codec: "aac", AudioChannelLayout: "5.1", Title: "Main"},
	}

	got := MatchAudioStream(reference, candidates)
	if got == nil || got.ID != 10 {
		t.Fatalf("expected stream 10, got %v", got)
	}
}

func TestMatchAudioStream_ScoringExample(t *testing.T) {
	// Reference is AAC 5.1; the AAC candidate outscores the AC3 one even
	// though the AC3 stream has more channels.
	reference := &plex.AudioStream{ID: 1, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1"}
	candidates := []plex.AudioStream{
		{ID: 10, LanguageCode: "eng", Codec: "ac3", Channels: 6, AudioChannelLayout: "5.1"},
		{ID: 11, LanguageCode: "eng", Codec: "aac", Channels: 2, AudioChannelLayout: "5.1"},
	}

	got := MatchAudioStream(reference, candidates)
	if got == nil || got.ID != 11 {
		t.Fatalf("expected codec match (stream 11) to win, got %v", got)
	}
}

func TestMatchAudioStream_TieBreakFirstWins(t *testing.T) {
	reference := &plex.AudioStream{ID: 1, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1"}
	// Identical attributes, identical scores: the earlier candidate wins.
	candidates := []plex.AudioStream{
		{ID: 10, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Title: "a"},
		{ID: 11, LanguageCode: "eng", Codec: "aac", Channels: 6, AudioChannelLayout: "5.1", Title: "b"},
	}

	got := MatchAudioStream(reference, candidates)
	if got == nil || got.ID != 10 {
		t.Fatalf("expected first maximal candidate (stream 10), got %v", got)
	}
}

func TestMatchAudioStream_Commentary(t *testing.T) {
	tests := []struct {
		name       string
		refTitle   string
		candidates []plex.AudioStream
		wantID     int // 0 = expect nil
	}{
		{
			name:     "commentary reference only matches commentary",
			refTitle: "Director Commentary",
			candidates: []plex.AudioStream{
				{ID: 10, LanguageCode: "eng", Title: "Main"},
				{ID: 11, LanguageCode: "eng", Title: "Cast Commentary"},
			},
			wantID: 11,
		},
		{
			name:     "plain reference drops commentary candidates",
			refTitle: "",
			candidates: []plex.AudioStream{
				{ID: 10, LanguageCode: "eng", Title: "Commentary by the director"},
				{ID: 11, LanguageCode: "eng", Title: ""},
			},
			wantID: 11,
		},
		{
			name:     "commentary reference with no commentary candidates",
			refTitle: "commentary",
			candidates: []plex.AudioStream{
				{ID: 10, LanguageCode: "eng", Title: "Main"},
			},
			wantID: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reference := &plex.AudioStream{ID: 1, LanguageCode: "eng", Title: tt.refTitle}
			got := MatchAudioStream(reference, tt.candidates)
			if tt.wantID == 0 {
				if got != nil {
					t.Fatalf("expected no match, got stream %d", got.ID)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Fatalf("expected stream %d, got %v", tt.wantID, got)
			}
		})
	}
}

func TestMatchAudioStream_AmbiguousChannelBias(t *testing.T) {
	// All candidates share the same (empty) title, so the ambiguous bias
	// kicks in: a stereo reference prefers the stream with more channels.
	reference := &plex.AudioStream{ID: 1, LanguageCode: "eng", Codec: "aac", Channels: 2, AudioChannelLayout: "stereo"}
	candidates := []plex.AudioStream{
		{ID: 10, LanguageCode: "eng", Codec: "mp2", Channels: 2, AudioChannelLayout: "2.0"},
		{ID: 11, LanguageCode: "eng", Codec: "ac3", Channels: 6, AudioChannelLayout: "5.1"},
	}

	got := MatchAudioStream(reference, candidates)
	if got == nil || got.ID != 11 {
		t.Fatalf("expected the 6-channel stream (11) to win, got %v", got)
	}

	// When the stereo candidate also matches the reference codec and layout,
	// its score ties the channel bias and the earlier stream keeps the win.
	candidates[0].Codec = "aac"
	candidates[0].AudioChannelLayout = "stereo"
	got = MatchAudioStream(reference, candidates)
	if got == nil || got.ID != 10 {
		t.Fatalf("expected the tied earlier stream (10) to win, got %v", got)
	}
}

func TestMatchAudioStream_DistinctTitlesDisableBias(t *testing.T) {
	// Titles differ, so the channel bias is off and the exact stereo match wins.
	reference := &plex.AudioStream{ID: 1, LanguageCode: "eng", Codec: "aac", Channels: 2, AudioChannelLayout: "stereo"}
	candidates := []plex.AudioStream{
		{ID: 10, LanguageCode: "eng", Codec: "aac", Channels: 2, AudioChannelLayout: "stereo", Title: "Stereo"},
		{ID: 11, LanguageCode: "eng", Codec: "ac3", Channels: 6, AudioChannelLayout: "5.1", Title: "Surround"},
	}

	got := MatchAudioStream(reference, candidates)
	if got == nil || got.ID != 10 {
		t.Fatalf("expected the stereo stream (10) to win, got %v", got)
	}
}

func TestMatchSubtitleStream_ForcedFallback(t *testing.T) {
	referenceAudio := &plex.AudioStream{ID: 1, LanguageCode: "fra"}
	candidates := []plex.SubtitleStream{
		{ID: 20, LanguageCode: "fra", Forced: false},
		{ID: 21, LanguageCode: "fra", Forced: true},
		{ID: 22, LanguageCode: "eng", Forced: true},
	}

	got := MatchSubtitleStream(nil, referenceAudio, candidates)
	if got == nil || got.ID != 21 {
		t.Fatalf("expected forced fra subtitle (21), got %v", got)
	}
}

func TestMatchSubtitleStream_NoReferenceAtAll(t *testing.T) {
	candidates := []plex.SubtitleStream{{ID: 20, LanguageCode: "eng", Forced: true}}
	if got := MatchSubtitleStream(nil, nil, candidates); got != nil {
		t.Fatalf("expected nil with no reference streams, got stream %d", got.ID)
	}
}

func TestMatchSubtitleStream_LanguageFilter(t *testing.T) {
	reference := &plex.SubtitleStream{ID: 2, LanguageCode: "ger"}
	candidates := []plex.SubtitleStream{
		{ID: 20, LanguageCode: "eng"},
		{ID: 21, LanguageCode: "fra"},
	}
	if got := MatchSubtitleStream(reference, nil, candidates); got != nil {
		t.Fatalf("expected no match across languages, got stream %d", got.ID)
	}
}

func TestMatchSubtitleStream_SingleCandidateSkipsScoring(t *testing.T) {
	reference := &plex.SubtitleStream{ID: 2, LanguageCode: "eng", Forced: true, HearingImpaired: true}
	candidates := []plex.SubtitleStream{
		{ID: 20, LanguageCode: "eng", Forced: false, HearingImpaired: false},
	}
	got := MatchSubtitleStream(reference, nil, candidates)
	if got == nil || got.ID != 20 {
		t.Fatalf("expected stream 20, got %v", got)
	}
}

func TestMatchSubtitleStream_Scoring(t *testing.T) {
	tests := []struct {
		name       string
		reference  plex.SubtitleStream
		candidates []plex.SubtitleStream
		wantID     int
	}{
		{
			name:      "flag matches beat codec match",
			reference: plex.SubtitleStream{LanguageCode: "eng", Forced: true, Codec: "srt"},
			candidates: []plex.SubtitleStream{
				{ID: 20, LanguageCode: "eng", Forced: false, Codec: "srt"},
				{ID: 21, LanguageCode: "eng", Forced: true, Codec: "pgs"},
			},
			wantID: 21,
		},
		{
			name:      "title match dominates",
			reference: plex.SubtitleStream{LanguageCode: "eng", Title: "Signs & Songs"},
			candidates: []plex.SubtitleStream{
				{ID: 20, LanguageCode: "eng", Title: "Full"},
				{ID: 21, LanguageCode: "eng", HearingImpaired: true, Title: "Signs & Songs"},
			},
			wantID: 21,
		},
		{
			name:      "equal scores preserve candidate order",
			reference: plex.SubtitleStream{LanguageCode: "eng"},
			candidates: []plex.SubtitleStream{
				{ID: 20, LanguageCode: "eng"},
				{ID: 21, LanguageCode: "eng"},
			},
			wantID: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchSubtitleStream(&tt.reference, nil, tt.candidates)
			if got == nil || got.ID != tt.wantID {
				t.Fatalf("expected stream %d, got %v", tt.wantID, got)
			}
		})
	}
}

func TestSelectedStreams(t *testing.T) {
	episode := &plex.Episode{
		Parts: []plex.MediaPart{
			{
				AudioStreams: []plex.AudioStream{
					{ID: 1, Selected: false},
					{ID: 2, Selected: true},
				},
				SubtitleStreams: []plex.SubtitleStream{
					{ID: 3, Selected: false},
				},
			},
		},
	}

	audio, subtitle := SelectedStreams(episode)
	if audio == nil || audio.ID != 2 {
		t.Fatalf("expected selected audio stream 2, got %v", audio)
	}
	if subtitle != nil {
		t.Fatalf("expected no selected subtitle, got stream %d", subtitle.ID)
	}
}

func TestSelectedPartStreams_Empty(t *testing.T) {
	audio, subtitle := SelectedPartStreams(&plex.MediaPart{})
	if audio != nil || subtitle != nil {
		t.Fatal("expected no selected streams on an empty part")
	}
}
