package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/halcyon-mobile/message-settings-api/settings"
	log "github.com/sirupsen/logrus"
)

// Settings is a HTTP server for user settings management.
type Settings struct {
	service *settings.Service
}

func NewSettings(service *settings.Service) *Settings {
	return &Settings{service}
}

func (s *Settings) GetSettings() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		res, err := s.service.GetSettings(r.Context())

		if err != nil {
			handleError(rw, r, err)
			return
		}

		handleJsonResponse(rw, http.StatusOK, res.ToJSON())
	})
}

func (s *Settings) SetSettings() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		// Check body is not empty
		if err := checkNonEmptyBody(r); err != nil {
			handleError(rw, r, err)
			return
		}

		// Get existing settings
		current, err := s.service.GetSettings(r.Context())
		if err != nil {
			handleError(rw, r, err)
			return
		}

		// Convert existing to JSON model
		settingsJSON := current.ToJSON()

		// Decode JSON over existing settings
		// Should not change fields which do not exist in request body
		if err := json.NewDecoder(r.Body).Decode(&settingsJSON); err != nil {
			handleError(rw, r, InvalidBodyError)
			return
		}

		if !current.BypassDND && settingsJSON.BypassDND {
			log.Debug("Do-not-disturb bypass enabled")
		} else if current.BypassDND && !settingsJSON.BypassDND {
			log.Debug("Do-not-disturb bypass disabled")
		}

		// Assign fields from JSON back to application model
		current.FromJSON(settingsJSON)

		// Save in database
		if err := s.service.SaveSettings(r.Context(), current); err != nil {
			handleError(rw, r, err)
			return
		}

		// Re-read so the response carries what was actually persisted,
		// clamping included.
		saved, err := s.service.GetSettings(r.Context())
		if err != nil {
			handleError(rw, r, err)
			return
		}

		handleJsonResponse(rw, http.StatusOK, saved.ToJSON())
	})
}

// Watch streams the settings as server-sent events. The current state
// is sent immediately, then a new event follows every change.
func (s *Settings) Watch() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		flusher, ok := rw.(http.Flusher)
		if !ok {
			http.Error(rw, "streaming unsupported", http.StatusNotImplemented)
			return
		}

		ch, cancel, err := s.service.WatchSettings(r.Context())
		if err != nil {
			handleError(rw, r, err)
			return
		}
		defer cancel()

		rw.Header().Set("Content-Type", "text/event-stream")
		rw.Header().Set("Cache-Control", "no-cache")
		rw.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case current, ok := <-ch:
				if !ok {
					return
				}
				payload, err := json.Marshal(current.ToJSON())
				if err != nil {
					log.WithFields(log.Fields{"error": err}).Warn("Error while encoding settings event")
					return
				}
				fmt.Fprintf(rw, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	})
}
