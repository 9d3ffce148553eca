package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/obs"
	"github.com/NordCoder/doggy-auth/internal/services/auth-api/httpx"
)

const maxBodyBytes = 16 << 10

type Server struct {
	log            *zap.Logger
	uc             *Usecase
	cookieName     string
	cookieDomain   string
	cookiePath     string
	cookieSecure   bool
	cookieSameSite http.SameSite
	refreshTTL     time.Duration
}

type Opts struct {
	Logger         *zap.Logger
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieSameSite http.SameSite
	RefreshTTL     time.Duration
}

func NewServer(uc *Usecase, o Opts) *Server {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if o.CookieName == "" {
		o.CookieName = "refresh_token"
	}
	if o.CookiePath == "" {
		o.CookiePath = "/"
	}
	if o.CookieSameSite == 0 {
		o.CookieSameSite = http.SameSiteLaxMode
	}
	return &Server{
		log:            log,
		uc:             uc,
		cookieName:     o.CookieName,
		cookieDomain:   o.CookieDomain,
		cookiePath:     o.CookiePath,
		cookieSecure:   o.CookieSecure,
		cookieSameSite: o.CookieSameSite,
		refreshTTL:     o.RefreshTTL,
	}
}

// Routes is the versioned auth surface, mounted under the api prefix.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", s.Status)
	r.Post("/login", s.Login)
	r.Post("/refresh", s.Refresh)
	r.Post("/logout", s.Logout)
	r.Get("/me", s.Me)
	return r
}

type loginRequest struct {
	ProviderToken string `json:"provider_token"`
	// FirebaseToken is the field name older clients send.
	FirebaseToken string `json:"firebase_token"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) Status(w http.ResponseWriter, _ *http.Request) {
	httpx.OK(w, "Server is running", map[string]string{"status": "running"})
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		httpx.Error(w, r, s.log, httpx.ErrBadRequest)
		return
	}
	token := req.ProviderToken
	if token == "" {
		token = req.FirebaseToken
	}
	if token == "" {
		httpx.Error(w, r, s.log, httpx.ErrBadRequest)
		return
	}

	sess, err := s.uc.Login(r.Context(), token)
	if err != nil {
		httpx.Error(w, r, s.log, err)
		return
	}

	s.setRefreshCookie(w, sess.RefreshToken)
	obs.WithTrace(r.Context(), s.log).Info("auth.login", zap.String("user_id", sess.User.ID))
	httpx.OK(w, "Login successful", tokenResponse{AccessToken: sess.AccessToken, TokenType: "bearer"})
}

func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := s.uc.Refresh(r.Context(), s.refreshFromRequest(r))
	if err != nil {
		if errors.Is(err, domainauth.ErrInvalidRefreshToken) {
			s.clearRefreshCookie(w)
		}
		httpx.Error(w, r, s.log, err)
		return
	}
	if sess.RefreshToken != "" {
		s.setRefreshCookie(w, sess.RefreshToken)
	}
	httpx.OK(w, "Token refreshed", tokenResponse{AccessToken: sess.AccessToken, TokenType: "bearer"})
}

// Logout always succeeds for the client; a storage failure is only logged.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.Logout(r.Context(), s.refreshFromRequest(r)); err != nil {
		obs.WithTrace(r.Context(), s.log).Warn("logout revoke failed", zap.Error(err))
	}
	s.clearRefreshCookie(w)
	httpx.OK(w, "Logged out", nil)
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	if token == "" {
		httpx.Error(w, r, s.log, domainauth.ErrMissingToken)
		return
	}
	p, err := s.uc.WhoAmI(r.Context(), token)
	if err != nil {
		httpx.Error(w, r, s.log, err)
		return
	}
	httpx.OK(w, "OK", p)
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, raw string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    raw,
		Path:     s.cookiePath,
		Domain:   s.cookieDomain,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: s.cookieSameSite,
		MaxAge:   int(s.refreshTTL.Seconds()),
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     s.cookiePath,
		Domain:   s.cookieDomain,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: s.cookieSameSite,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}

func (s *Server) refreshFromRequest(r *http.Request) string {
	if c, err := r.Cookie(s.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("X-Refresh-Token")
}

func bearer(r *http.Request) string {
	v := r.Header.Get("Authorization")
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}
