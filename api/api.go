// Package api is the REST surface of the chat core. Each request gets a
// short-lived client restored from the bearer token.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/rus-sharafiev/go-rest-common/exception"

	"github.com/ihazratummar/Neat-Roots-Chat-app/client"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/auth"
)

type API struct {
	Clients   *client.Factory
	Tokens    *auth.Issuer
	MaxUpload int64
	Log       *slog.Logger
}

func (a *API) Register(mux *http.ServeMux) {
	mux.Handle("/api/auth/", &authController{a})
	mux.Handle("/api/users/", &userController{a})
	mux.Handle("/api/chats", &chatController{a})
	mux.Handle("/api/chats/", &chatController{a})
	mux.Handle("/api/status", &statusController{a})
}

// withClient resumes the token's user for the duration of fn.
func (a *API) withClient(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, c *client.Client, userID string)) {
	userID := auth.Headers(r)
	if len(userID) == 0 {
		exception.Unauthorized(w)
		return
	}

	c, err := a.Clients.Resume(r.Context(), userID, false)
	if err != nil {
		a.writeError(w, err)
		return
	}
	defer c.Close()
	fn(r.Context(), c, userID)
}

func (a *API) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		a.writeError(w, apperr.Wrap(apperr.CodeValidation, "invalid request body", err))
		return false
	}
	return true
}

func (a *API) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := a.MaxUpload
	if limit <= 0 {
		limit = 10 << 20
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		a.writeError(w, apperr.Wrap(apperr.CodeValidation, "file is too large", err))
		return nil, false
	}
	return data, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

var statusByCode = map[apperr.Code]int{
	apperr.CodeValidation:    http.StatusBadRequest,
	apperr.CodeConflict:      http.StatusConflict,
	apperr.CodeAlreadyExists: http.StatusConflict,
	apperr.CodeNotFound:      http.StatusNotFound,
	apperr.CodeAuth:          http.StatusUnauthorized,
	apperr.CodeTransport:     http.StatusBadGateway,
}

// StatusOf maps an error to its HTTP status code.
func StatusOf(err error) int {
	if status, ok := statusByCode[apperr.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		a.Log.Error("request failed", "err", err)
		exception.InternalServerError(w, err)
		return
	}
	if status == http.StatusBadGateway {
		a.Log.Warn("collaborator failed", "err", err)
	}
	writeJSON(w, status, &apperr.AppError{Code: apperr.CodeOf(err), Message: apperr.Message(err)})
}
