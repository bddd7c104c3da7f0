// Copyright 2024-2026 Aiku AI

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// API translates HTTP calls into session and tracker operations. Routing is
// plain chi; every response body carries an ok/error discriminator.
type API struct {
	session *Session
	tracker *Tracker
	log     zerolog.Logger

	// media fetches remote bodies for /sendViewOnceMedia.
	media *http.Client
}

// NewAPI creates the HTTP surface over a running session.
func NewAPI(session *Session, tracker *Tracker, log zerolog.Logger) *API {
	return &API{
		session: session,
		tracker: tracker,
		log:     log.With().Str("component", "api").Logger(),
		media:   &http.Client{Timeout: 60 * time.Second},
	}
}

// Router builds the chi router with all gateway endpoints.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", a.handleHealth)
	r.Get("/auth", a.handleAuth)
	r.Get("/checkAuth", a.handleCheckAuth)
	r.Post("/sendMessage", a.handleSendMessage)
	r.Post("/sendButton", a.handleSendButton)
	r.Post("/sendList", a.handleSendList)
	r.Post("/sendViewOnceMedia", a.handleSendViewOnceMedia)
	r.Post("/markOnline", a.handleMarkOnline)
	r.Post("/markTyping", a.handleMarkTyping)
	r.Post("/delete", a.handleDelete)
	r.Post("/pairCode", a.handlePairCode)
	r.Post("/logout", a.handleLogout)

	return r
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Warn().Err(err).Msg("Failed to write response")
	}
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// writeErr maps an error to its HTTP status per the gateway taxonomy:
// validation failures are the client's fault, everything else is surfaced as
// a server error carrying only the message string.
func (a *API) writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var verr *ValidationError
	if errors.As(err, &verr) {
		status = http.StatusBadRequest
	}
	a.writeJSON(w, status, errorResponse{OK: false, Error: err.Error()})
}

// decode parses a JSON request body into dst. An empty body is an empty
// request, not a client error: endpoints with only optional fields accept it.
func decode(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &ValidationError{Field: "body", Reason: "is not valid JSON"}
}
