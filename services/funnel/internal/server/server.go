package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pillarfunnel/internal/ratelimit"
	"pillarfunnel/internal/util"
	"pillarfunnel/pkg/domain"
	"pillarfunnel/services/funnel/internal/app"
)

const maxBodyBytes = 64 << 10

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	PublicOrigin   string
	AllowedOrigins []string
	TrustedProxies *util.TrustedProxies
	// SubmitLimiter guards registration, qualification and progress saves.
	SubmitLimiter *ratelimit.FixedWindowLimiter
	// DraftLimiter guards autosave edits, which arrive far more often.
	DraftLimiter *ratelimit.FixedWindowLimiter
	// ReturnVisitLimiter guards return-visit lookups, which fire a webhook.
	ReturnVisitLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes the funnel API consumed by the static front-end.
type Server struct {
	app            *app.App
	origin         string
	allowedOrigins []string
	trusted        *util.TrustedProxies
	submitLimiter  *ratelimit.FixedWindowLimiter
	draftLimiter   *ratelimit.FixedWindowLimiter
	returnLimiter  *ratelimit.FixedWindowLimiter
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	s := &Server{
		app:            cfg.App,
		origin:         strings.TrimRight(strings.TrimSpace(cfg.PublicOrigin), "/"),
		allowedOrigins: cfg.AllowedOrigins,
		trusted:        cfg.TrustedProxies,
		submitLimiter:  cfg.SubmitLimiter,
		draftLimiter:   cfg.DraftLimiter,
		returnLimiter:  cfg.ReturnVisitLimiter,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog("funnel",
			util.WithSecurityHeaders(
				util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/registrations", s.handleRegistration)
	s.mux.HandleFunc("/api/qualifications", s.handleQualification)

	s.mux.HandleFunc("/api/quiz/progress", s.handleProgress)
	s.mux.HandleFunc("/api/quiz/draft", s.handleDraft)
	s.mux.HandleFunc("/api/quiz/return-url", s.handleReturnURL)

	s.mux.HandleFunc("/api/return/", s.handleReturnVisit)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registrationRequest struct {
	FullName  string `json:"fullName"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type quizRequest struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	BusinessName string `json:"businessName"`
	BusinessType string `json:"businessType"`
	Budget       string `json:"budget"`
	Timeline     string `json:"timeline"`
	Committed    bool   `json:"committed"`
}

func (q quizRequest) qualification() domain.Qualification {
	return domain.Qualification{
		Identity: domain.Identity{FirstName: q.FirstName, LastName: q.LastName, Email: q.Email},
		Answers: domain.QuizAnswers{
			BusinessName: q.BusinessName,
			BusinessType: domain.BusinessType(q.BusinessType),
			Budget:       domain.Budget(q.Budget),
			Timeline:     domain.Timeline(q.Timeline),
			Committed:    q.Committed,
		},
	}
}

type noticeResponse struct {
	Notice domain.Notice `json:"notice"`
}

type validationResponse struct {
	Error  string           `json:"error"`
	Notice domain.Notice    `json:"notice"`
	Fields []app.FieldError `json:"fields,omitempty"`
}

func (s *Server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.submitLimiter, "too many submissions") {
		return
	}
	var req registrationRequest
	if !decodeJSON(w, r, &req, app.NoticeRegistrationFailed) {
		return
	}
	notice, err := s.app.SubmitRegistration(r.Context(), app.RegistrationInput{
		FullName:  req.FullName,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}, s.source(r))
	if err != nil {
		writeSubmissionError(w, r, err, notice)
		return
	}
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice})
}

func (s *Server) handleQualification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.submitLimiter, "too many submissions") {
		return
	}
	var req quizRequest
	if !decodeJSON(w, r, &req, app.NoticeSubmissionFailed) {
		return
	}
	notice, err := s.app.SubmitQualification(r.Context(), req.qualification(), s.source(r))
	if err != nil {
		writeSubmissionError(w, r, err, notice)
		return
	}
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.submitLimiter, "too many submissions") {
		return
	}
	var req quizRequest
	if !decodeJSON(w, r, &req, app.NoticeSubmissionFailed) {
		return
	}
	res, err := s.app.SaveProgress(r.Context(), req.qualification())
	if err != nil {
		writeSubmissionError(w, r, err, app.NoticeSubmissionFailed)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.draftLimiter, "too many edits") {
		return
	}
	var req quizRequest
	if !decodeJSON(w, r, &req, app.NoticeSubmissionFailed) {
		return
	}
	scheduled, err := s.app.EditDraft(r.Context(), req.qualification())
	if err != nil {
		writeSubmissionError(w, r, err, app.NoticeSubmissionFailed)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": scheduled})
}

func (s *Server) handleReturnURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	returnURL, ok, err := s.app.CachedReturnURL(r.Context(), r.URL.Query().Get("email"))
	switch {
	case errors.Is(err, app.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, "email is required")
	case err != nil:
		util.LoggerFromContext(r.Context()).Error("return_url_lookup_failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "return url unavailable")
	case !ok:
		writeError(w, http.StatusNotFound, "no saved progress")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"returnUrl": returnURL})
	}
}

func (s *Server) handleReturnVisit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/return/"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !s.allowRate(w, r, s.returnLimiter, "too many requests") {
		return
	}
	source := r.Header.Get("Referer")
	if source == "" {
		source = s.origin + "/return/" + url.PathEscape(userID)
	}
	rv := s.app.ResolveReturnVisit(r.Context(), userID, r.URL.Query(), source)
	writeJSON(w, http.StatusOK, rv)
}

// source identifies the page a submission came from: Referer, then Origin,
// then the configured public origin.
func (s *Server) source(r *http.Request) string {
	if ref := strings.TrimSpace(r.Header.Get("Referer")); ref != "" {
		return ref
	}
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && origin != "null" {
		return origin
	}
	return s.origin
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	ip := util.ClientIP(r, s.trusted)
	d := limiter.Allow(r.Context(), rateRoute(r.URL.Path)+"|"+ip)
	if d.Err != nil {
		util.LoggerFromContext(r.Context()).Warn("rate_limiter_unavailable", "error", d.Err, "allowed", d.Allowed)
	}
	if d.Allowed {
		return true
	}
	retry := int(d.RetryAfter.Seconds())
	if retry < 1 {
		retry = 60
	}
	util.LoggerFromContext(r.Context()).Warn("rate_limited", "path", r.URL.Path, "ip", ip)
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// rateRoute collapses /api/return/{userId} so a client cannot dodge the
// limit by varying the user id.
func rateRoute(path string) string {
	if strings.HasPrefix(path, "/api/return/") {
		return "/api/return/"
	}
	return path
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, failure domain.Notice) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "invalid JSON body", Notice: failure})
		return false
	}
	return true
}

func writeSubmissionError(w http.ResponseWriter, r *http.Request, err error, notice domain.Notice) {
	var verr *app.ValidationError
	if errors.As(err, &verr) {
		util.LoggerFromContext(r.Context()).Info("submission_rejected", "path", r.URL.Path, "fields", len(verr.Fields))
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Error:  "invalid submission",
			Notice: notice,
			Fields: verr.Fields,
		})
		return
	}
	util.LoggerFromContext(r.Context()).Error("submission_failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, validationResponse{Error: "internal error", Notice: notice})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
