package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Preference stores a user's track preference for a show. A nil
// SubtitleLanguageCode means the user watches without subtitles.
type Preference struct {
	ID                      int64     `json:"id"`
	UserID                  string    `json:"user_id"`
	Username                string    `json:"username"`
	ShowRatingKey           string    `json:"show_rating_key"`
	ShowTitle               string    `json:"show_title"`
	AudioLanguageCode       string    `json:"audio_language_code"`
	AudioCodec              string    `json:"audio_codec"`
	AudioChannels           int       `json:"audio_channels"`
	AudioChannelLayout      string    `json:"audio_channel_layout"`
	AudioTitle              string    `json:"audio_title"`
	AudioDisplayTitle       string    `json:"audio_display_title"`
	SubtitleLanguageCode    *string   `json:"subtitle_language_code"`
	SubtitleForced          bool      `json:"subtitle_forced"`
	SubtitleHearingImpaired bool      `json:"subtitle_hearing_impaired"`
	SubtitleCodec           *string   `json:"subtitle_codec"`
	SubtitleTitle           *string   `json:"subtitle_title"`
	SubtitleDisplayTitle    *string   `json:"subtitle_display_title"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

const preferenceColumns = `id, user_id, username, show_rating_key, show_title,
	audio_language_code, audio_codec, audio_channels, audio_channel_layout,
	audio_title, audio_display_title,
	subtitle_language_code, subtitle_forced, subtitle_hearing_impaired,
	subtitle_codec, subtitle_title, subtitle_display_title,
	created_at, updated_at`

// UpsertPreference creates or updates a user's track preference for a show
func (db *DB) UpsertPreference(pref *Preference) error {
	_, err := db.Exec(`
		INSERT INTO preferences (
			user_id, username, show_rating_key, show_title,
			audio_language_code, audio_codec, audio_channels, audio_channel_layout,
			audio_title, audio_display_title,
			subtitle_language_code, subtitle_forced, subtitle_hearing_impaired,
			subtitle_codec, subtitle_title, subtitle_display_title,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, show_rating_key) DO UPDATE SET
			username = excluded.username,
			show_title = excluded.show_title,
			audio_language_code = excluded.audio_language_code,
			audio_codec = excluded.audio_codec,
			audio_channels = excluded.audio_channels,
			audio_channel_layout = excluded.audio_channel_layout,
			audio_title = excluded.audio_title,
			audio_display_title = excluded.audio_display_title,
			subtitle_language_code = excluded.subtitle_language_code,
			subtitle_forced = excluded.subtitle_forced,
			subtitle_hearing_impaired = excluded.subtitle_hearing_impaired,
			subtitle_codec = excluded.subtitle_codec,
			subtitle_title = excluded.subtitle_title,
			subtitle_display_title = excluded.subtitle_display_title,
			updated_at = CURRENT_TIMESTAMP
	`, pref.UserID, pref.Username, pref.ShowRatingKey, pref.ShowTitle,
		pref.AudioLanguageCode, pref.AudioCodec, pref.AudioChannels, pref.AudioChannelLayout,
		pref.AudioTitle, pref.AudioDisplayTitle,
		pref.SubtitleLanguageCode, pref.SubtitleForced, pref.SubtitleHearingImpaired,
		pref.SubtitleCodec, pref.SubtitleTitle, pref.SubtitleDisplayTitle)
	if err != nil {
		return fmt.Errorf("failed to upsert preference: %w", err)
	}

	return nil
}

// GetPreference retrieves a user's track preference for a show. Returns
// (nil, nil) when no preference is stored.
func (db *DB) GetPreference(userID, showRatingKey string) (*Preference, error) {
	row := db.QueryRow(`
		SELECT `+preferenceColumns+`
		FROM preferences
		WHERE user_id = ? AND show_rating_key = ?
	`, userID, showRatingKey)

	pref, err := scanPreference(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}
	return pref, nil
}

// ListPreferences retrieves all stored preferences
func (db *DB) ListPreferences() ([]*Preference, error) {
	rows, err := db.Query(`
		SELECT ` + preferenceColumns + `
		FROM preferences
		ORDER BY show_title, username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	return collectPreferences(rows)
}

// ListPreferencesForShow retrieves all user preferences for a show
func (db *DB) ListPreferencesForShow(showRatingKey string) ([]*Preference, error) {
	rows, err := db.Query(`
		SELECT `+preferenceColumns+`
		FROM preferences
		WHERE show_rating_key = ?
		ORDER BY username
	`, showRatingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences for show: %w", err)
	}
	defer rows.Close()

	return collectPreferences(rows)
}

// DeletePreference removes a user's preference for a show
func (db *DB) DeletePreference(userID, showRatingKey string) error {
	_, err := db.Exec(`
		DELETE FROM preferences WHERE user_id = ? AND show_rating_key = ?
	`, userID, showRatingKey)
	if err != nil {
		return fmt.Errorf("failed to delete preference: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreference(row rowScanner) (*Preference, error) {
	var pref Preference
	err := row.Scan(
		&pref.ID, &pref.UserID, &pref.Username, &pref.ShowRatingKey, &pref.ShowTitle,
		&pref.AudioLanguageCode, &pref.AudioCodec, &pref.AudioChannels, &pref.AudioChannelLayout,
		&pref.AudioTitle, &pref.AudioDisplayTitle,
		&pref.SubtitleLanguageCode, &pref.SubtitleForced, &pref.SubtitleHearingImpaired,
		&pref.SubtitleCodec, &pref.SubtitleTitle, &pref.SubtitleDisplayTitle,
		&pref.CreatedAt, &pref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func collectPreferences(rows *sql.Rows) ([]*Preference, error) {
	var prefs []*Preference
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}
