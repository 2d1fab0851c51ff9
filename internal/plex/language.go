package plex

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// languageName resolves an ISO language code to its English display name.
// Returns the code unchanged when it cannot be parsed.
func languageName(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// DisplayName returns a human-readable label for the stream, falling back
// to the language name when the server provided no display title.
func (s *AudioStream) DisplayName() string {
	if s == nil {
		return "None"
	}
	if s.DisplayTitle != "" {
		return s.DisplayTitle
	}
	if name := languageName(s.LanguageCode); name != "" {
		return name
	}
	return "Unknown"
}

// DisplayName returns a human-readable label for the stream, falling back
// to the language name when the server provided no display title.
func (s *SubtitleStream) DisplayName() string {
	if s == nil {
		return "None"
	}
	if s.DisplayTitle != "" {
		return s.DisplayTitle
	}
	if name := languageName(s.LanguageCode); name != "" {
		return name
	}
	return "Unknown"
}
