// Package tracks implements the track-change computation and matching engine:
// given the audio/subtitle selection of a reference episode, it scores the
// streams of other episodes, accumulates an ordered change list and applies
// it against the server.
package tracks

import (
	"sort"
	"strings"

	"autolingo/internal/plex"
)

// isCommentary reports whether a stream title marks a commentary track.
func isCommentary(title string) bool {
	return strings.Contains(strings.ToLower(title), "commentary")
}

// SelectedAudioStream returns the first selected stream, or nil when none is.
func SelectedAudioStream(streams []plex.AudioStream) *plex.AudioStream {
	for i := range streams {
		if streams[i].Selected {
			return &streams[i]
		}
	}
	return nil
}

// SelectedSubtitleStream returns the first selected stream, or nil when none is.
func SelectedSubtitleStream(streams []plex.SubtitleStream) *plex.SubtitleStream {
	for i := range streams {
		if streams[i].Selected {
			return &streams[i]
		}
	}
	return nil
}

// SelectedStreams returns the episode's selected audio and subtitle streams
// across all of its parts.
func SelectedStreams(episode *plex.Episode) (*plex.AudioStream, *plex.SubtitleStream) {
	return SelectedAudioStream(episode.AudioStreams()), SelectedSubtitleStream(episode.SubtitleStreams())
}

// SelectedPartStreams returns the part's selected audio and subtitle streams.
func SelectedPartStreams(part *plex.MediaPart) (*plex.AudioStream, *plex.SubtitleStream) {
	return SelectedAudioStream(part.AudioStreams), SelectedSubtitleStream(part.SubtitleStreams)
}

// MatchAudioStream selects the best matching audio stream among candidates
// for the given reference stream. Returns nil when there is no reference or
// no suitable match.
func MatchAudioStream(reference *plex.AudioStream, candidates []plex.AudioStream) *plex.AudioStream {
	if reference == nil {
		return nil
	}

	var streams []*plex.AudioStream
	for i := range candidates {
		if candidates[i].LanguageCode == reference.LanguageCode {
			streams = append(streams, &candidates[i])
		}
	}

	// When the part's streams cannot be told apart by title, the scoring
	// below biases toward channel counts. The flag is computed over the full
	// candidate set, not the language-filtered one.
	ambiguous := true
	for i := range candidates {
		if candidates[i].Title != candidates[0].Title {
			ambiguous = false
			break
		}
	}

	// Commentary tracks only ever match other commentary tracks.
	if isCommentary(reference.Title) {
		streams = filterAudio(streams, func(s *plex.AudioStream) bool { return isCommentary(s.Title) })
	} else {
		streams = filterAudio(streams, func(s *plex.AudioStream) bool { return !isCommentary(s.Title) })
	}

	if len(streams) == 0 {
		return nil
	}
	if len(streams) == 1 {
		return streams[0]
	}

	// First-maximal-index tie-break: only a strictly higher score displaces
	// the current best.
	best := streams[0]
	bestScore := scoreAudioStream(reference, streams[0], ambiguous)
	for _, stream := range streams[1:] {
		if score := scoreAudioStream(reference, stream, ambiguous); score > bestScore {
			best, bestScore = stream, score
		}
	}
	return best
}

func scoreAudioStream(reference, candidate *plex.AudioStream, ambiguous bool) int {
	score := 0
	if reference.Codec == candidate.Codec {
		score += 5
	}
	if reference.AudioChannelLayout == candidate.AudioChannelLayout {
		score += 3
	}
	if ambiguous {
		if reference.Channels < 3 {
			// A stereo/mono reference among ambiguous streams is likely a
			// commentary layout; prefer more channels as the safer choice.
			if candidate.Channels > reference.Channels {
				score += 8
			}
		} else if candidate.Channels >= reference.Channels {
			score += 1
		}
	}
	if reference.Title != "" && reference.Title == candidate.Title {
		score += 5
	}
	return score
}

func filterAudio(streams []*plex.AudioStream, keep func(*plex.AudioStream) bool) []*plex.AudioStream {
	var filtered []*plex.AudioStream
	for _, s := range streams {
		if keep(s) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// MatchSubtitleStream selects the best matching subtitle stream among
// candidates. When no subtitle was selected on the reference, it falls back
// to the first forced subtitle in the reference audio's language; a nil
// result means "no subtitles".
func MatchSubtitleStream(reference *plex.SubtitleStream, referenceAudio *plex.AudioStream, candidates []plex.SubtitleStream) *plex.SubtitleStream {
	if reference == nil {
		if referenceAudio == nil {
			return nil
		}
		for i := range candidates {
			if candidates[i].LanguageCode == referenceAudio.LanguageCode && candidates[i].Forced {
				return &candidates[i]
			}
		}
		return nil
	}

	var streams []*plex.SubtitleStream
	for i := range candidates {
		if candidates[i].LanguageCode == reference.LanguageCode {
			streams = append(streams, &candidates[i])
		}
	}

	if len(streams) == 0 {
		return nil
	}
	if len(streams) == 1 {
		return streams[0]
	}

	type scoredStream struct {
		score  int
		stream *plex.SubtitleStream
	}
	scored := make([]scoredStream, 0, len(streams))
	for _, stream := range streams {
		scored = append(scored, scoredStream{
			score:  scoreSubtitleStream(reference, stream),
			stream: stream,
		})
	}

	// Stable sort: equal scores preserve candidate order.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	return scored[0].stream
}

func scoreSubtitleStream(reference, candidate *plex.SubtitleStream) int {
	score := 0
	if reference.Forced == candidate.Forced {
		score += 3
	}
	if reference.HearingImpaired == candidate.HearingImpaired {
		score += 3
	}
	if reference.Codec != "" && candidate.Codec != "" && reference.Codec == candidate.Codec {
		score += 1
	}
	if reference.Title != "" && candidate.Title != "" && reference.Title == candidate.Title {
		score += 5
	}
	return score
}
