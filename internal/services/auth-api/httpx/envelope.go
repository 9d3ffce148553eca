// Package httpx holds the JSON envelope and the middlewares shared by every auth-api route.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/obs"
)

var ErrBadRequest = errors.New("invalid request body")

// Envelope is the body of every response; Code mirrors the HTTP status.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func Write(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Envelope{Code: code, Msg: msg, Data: data})
}

func OK(w http.ResponseWriter, msg string, data any) {
	Write(w, http.StatusOK, msg, data)
}

var errorTable = []struct {
	err  error
	code int
	msg  string
}{
	{ErrBadRequest, http.StatusBadRequest, "Invalid request body"},
	{domainauth.ErrInvalidIdentity, http.StatusUnauthorized, "Invalid identity token"},
	{domainauth.ErrMissingToken, http.StatusUnauthorized, "Missing token"},
	{domainauth.ErrInvalidRefreshToken, http.StatusUnauthorized, "Invalid or expired refresh token"},
	{domainauth.ErrTokenExpired, http.StatusUnauthorized, "Token has expired"},
	{domainauth.ErrUnauthorized, http.StatusUnauthorized, "Invalid token"},
	{domainauth.ErrAccountDisabled, http.StatusForbidden, "Account is disabled"},
	{domainauth.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{domainauth.ErrEmailTaken, http.StatusConflict, "Email already registered"},
	{domainauth.ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	{domainauth.ErrStorageUnavailable, http.StatusServiceUnavailable, "Service temporarily unavailable"},
}

// StatusOf maps err to the status and client message. Error text never reaches the client.
func StatusOf(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.code, e.msg
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

func Error(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	code, msg := StatusOf(err)
	if code >= http.StatusInternalServerError {
		obs.WithTrace(r.Context(), log).Error("request failed",
			zap.String("path", r.URL.Path), zap.Int("code", code), zap.Error(err))
	}
	Write(w, code, msg, nil)
}
