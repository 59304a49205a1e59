// Package server exposes the patient registry as a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"strokeregistry/internal/ratelimit"
	"strokeregistry/internal/registry"
	"strokeregistry/internal/util"
	"strokeregistry/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Registry *registry.Registry

	// Redis enables per-IP rate limiting when set. A nil client
	// disables all limiters.
	Redis *redis.Client

	LoginRateLimitPerMinute    int
	RegisterRateLimitPerMinute int
	IntakeRateLimitPerMinute   int

	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the registry.
type Server struct {
	registry *registry.Registry
	mux      *http.ServeMux
	trusted  *util.TrustedProxies

	loginLimiter    *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
	intakeLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("server: registry is required")
	}
	s := &Server{
		registry: cfg.Registry,
		mux:      http.NewServeMux(),
		trusted:  cfg.TrustedProxies,
	}
	if cfg.Redis != nil {
		newLimiter := func(name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
			if limit <= 0 {
				limit = fallback
			}
			limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "registry:ratelimit:"+name, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.loginLimiter, err = newLimiter("login", cfg.LoginRateLimitPerMinute, 5); err != nil {
			return nil, err
		}
		if s.registerLimiter, err = newLimiter("register", cfg.RegisterRateLimitPerMinute, 3); err != nil {
			return nil, err
		}
		if s.intakeLimiter, err = newLimiter("intake", cfg.IntakeRateLimitPerMinute, 10); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the standard
// middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithRequestID(util.WithRequestLog("registry", s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.Handle("/auth/logout", s.authenticated(s.handleLogout))

	// patients
	s.mux.Handle("/api/patients", s.authenticated(s.handlePatients))
	s.mux.Handle("/api/patients/", s.authenticated(s.handlePatientByID))

	// reporting
	s.mux.Handle("/api/dashboard-stats", s.authenticated(s.handleDashboard))
	s.mux.Handle("/api/my-activity-report", s.authenticated(s.handleActivityReport))

	// admin
	s.mux.Handle("/api/database-status", s.adminOnly(s.handleDatabaseStatus))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if user.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.registry.UserFromToken(token)
}

// auth handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many registration attempts") {
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.registry.Register(req.Email, req.Password, req.DisplayName, req.Role)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, err := s.registry.Login(req.Email, req.Password)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	user, ok := s.registry.UserFromToken(token)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.registry.Logout(user.Email, token); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

// patient handlers
func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		patients, err := s.registry.ListPatients(user.Email)
		if err != nil {
			s.writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"patients": patients,
			"count":    len(patients),
		})
	case http.MethodPost:
		if !s.allowRate(w, r, s.intakeLimiter, "too many patient submissions") {
			return
		}
		var p domain.Patient
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := s.registry.CreatePatient(user.Email, p)
		if err != nil {
			s.writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "patient": created})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePatientByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/patients/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}
	idPart, suffix, _ := strings.Cut(rest, "/")
	id, err := strconv.Atoi(idPart)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid patient id")
		return
	}

	if suffix == "full-history" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		full, err := s.registry.PatientFullHistory(user.Email, id)
		if err != nil {
			s.writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"current":     full.Current,
			"history":     full.History,
			"audit_trail": full.AuditTrail,
		})
		return
	}
	if suffix != "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var p domain.Patient
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.registry.UpdatePatient(user.Email, id, p); err != nil {
			s.writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "patient updated"})
	case http.MethodDelete:
		if err := s.registry.DeletePatient(user.Email, id); err != nil {
			s.writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "patient deleted"})
	default:
		methodNotAllowed(w)
	}
}

// reporting handlers
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.registry.Dashboard(user.Email)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (s *Server) handleActivityReport(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	report, err := s.registry.UserActivityReport(user.Email)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": report})
}

func (s *Server) handleDatabaseStatus(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	health := s.registry.VerifyConnections()
	status := http.StatusOK
	if health.Status != "success" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	var vErr *registry.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Reason)
	case errors.Is(err, registry.ErrEmailTaken),
		errors.Is(err, registry.ErrDuplicateID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, registry.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}
