package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"autolingo/internal/database"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()

	prefs, err := s.db.ListPreferences()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list preferences")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":         s.version,
		"uptime":          time.Since(s.startedAt).Round(time.Second).String(),
		"update_level":    cfg.UpdateLevel,
		"update_strategy": cfg.UpdateStrategy,
		"preferences":     len(prefs),
		"providers":       s.notifier.ListProviders(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.db.ListHistory(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if entries == nil {
		entries = []*database.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.db.ListPreferences()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list preferences")
		return
	}
	if prefs == nil {
		prefs = []*database.Preference{}
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleDeletePreference(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	showRatingKey := chi.URLParam(r, "showRatingKey")

	pref, err := s.db.GetPreference(userID, showRatingKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up preference")
		return
	}
	if pref == nil {
		writeError(w, http.StatusNotFound, "preference not found")
		return
	}

	if err := s.db.DeletePreference(userID, showRatingKey); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete preference")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncFn == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not available")
		return
	}

	go s.syncFn(context.Background())

	log.Info().Msg("Manual sync triggered via API")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if err := s.notifier.TestProvider(provider); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
