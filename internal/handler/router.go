package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/voicecal/backend/internal/handler/voice"
	middlewarePkg "github.com/zhouzirui/voicecal/backend/internal/middleware"
	"github.com/zhouzirui/voicecal/backend/internal/service/session"
	"github.com/zhouzirui/voicecal/backend/internal/service/speech"
	"github.com/zhouzirui/voicecal/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(sessions *session.Manager, recognizer speech.Recognizer, synthesizer speech.Synthesizer, idleTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	voiceHandler := voice.New(sessions, recognizer, synthesizer, idleTimeout)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":   "ok",
				"sessions": sessions.Count(),
				"time":     time.Now().UTC().Format(time.RFC3339),
			})
		})

		api.Get("/sessions/{sessionID}/state", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			state, err := sessions.State(sessionID)
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					utils.RespondError(w, http.StatusNotFound, "session not found")
					return
				}
				utils.RespondError(w, http.StatusInternalServerError, "state lookup failed")
				return
			}
			utils.RespondJSON(w, http.StatusOK, map[string]string{
				"sessionId": sessionID,
				"state":     string(state),
			})
		})

		voiceHandler.RegisterRoutes(api)
	})

	return r
}
