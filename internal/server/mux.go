// internal/server/mux.go
// Package server implements the HTTP handlers and routing for the entry
// service. It exposes the preparation lifecycle (create, save sections, mark
// ready, submit, supersede, archive), card history and snapshots, with JWT
// authentication and per-request tracing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tripdocs/tripdocs-entry-go/internal/card"
	"github.com/tripdocs/tripdocs-entry-go/internal/entry"
	errordefs "github.com/tripdocs/tripdocs-entry-go/internal/errors"
	"github.com/tripdocs/tripdocs-entry-go/internal/jwks"
	"github.com/tripdocs/tripdocs-entry-go/internal/media"
	"github.com/tripdocs/tripdocs-entry-go/internal/metrics"
	"github.com/tripdocs/tripdocs-entry-go/internal/model"
	"github.com/tripdocs/tripdocs-entry-go/internal/snapshot"
	"github.com/tripdocs/tripdocs-entry-go/internal/storage"
)

// ContextKey is used for context values to avoid collisions
// when storing values in request context
type ContextKey string

const (
	// Context keys for storing request-scoped values
	ContextKeyUserID        ContextKey = "userId"        // Stores the user id from JWT
	ContextKeyCorrelationID ContextKey = "correlationId" // Unique ID for request tracking
)

// Mux handles HTTP requests for the entry service.
type Mux struct {
	mux         *http.ServeMux   // HTTP request multiplexer
	s           storage.Store    // Storage, used directly only for readiness checks
	svc         *entry.Service   // Lifecycle service
	autosave    *entry.Debouncer // Buffered autosave
	jwksClient  *jwks.Client     // JWKS client for JWT validation
	jwtIssuer   string           // Expected JWT issuer for validation
	jwtAudience string           // Expected JWT audience for validation
	media       *media.S3Client  // Artifact storage, nil when not configured
	metrics     *metrics.Metrics // Metrics for monitoring

	// CORS configuration
	corsAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// Options carries the optional knobs for NewMux.
type Options struct {
	JWKSClient         *jwks.Client
	MediaClient        *media.S3Client
	CORSAllowedOrigins []string
	AutosaveDebounce   time.Duration
}

// NewMux creates the HTTP mux with all entry endpoints registered.
func NewMux(s storage.Store, svc *entry.Service, jwtIssuer, jwtAudience string, opts Options) (*http.ServeMux, *entry.Debouncer) {
	jwksClient := opts.JWKSClient
	if jwksClient == nil {
		jwksClient = jwks.NewClient(fmt.Sprintf("%s/.well-known/jwks.json", jwtIssuer))
	}

	debounce := opts.AutosaveDebounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	m := &Mux{
		mux:                http.NewServeMux(),
		s:                  s,
		svc:                svc,
		autosave:           entry.NewDebouncer(svc, debounce),
		jwksClient:         jwksClient,
		jwtIssuer:          jwtIssuer,
		jwtAudience:        jwtAudience,
		media:              opts.MediaClient,
		metrics:            metrics.NewMetrics(),
		corsAllowedOrigins: opts.CORSAllowedOrigins,
	}

	// Health endpoints
	m.mux.HandleFunc("/healthz", m.handleHealthz)
	m.mux.HandleFunc("/readyz", m.handleReadyz)
	m.mux.Handle("/metrics", promhttp.Handler())

	// Entry lifecycle endpoints
	m.mux.HandleFunc("POST /v1/entry", m.withMiddleware(m.handleCreateEntry))
	m.mux.HandleFunc("GET /v1/entry", m.withMiddleware(m.handleListEntries))
	m.mux.HandleFunc("GET /v1/entry/{id}", m.withMiddleware(m.handleGetEntry))
	m.mux.HandleFunc("GET /v1/entry/{id}/missing", m.withMiddleware(m.handleMissingFields))
	m.mux.HandleFunc("POST /v1/entry/{id}/sections", m.withMiddleware(m.handleSaveSections))
	m.mux.HandleFunc("POST /v1/entry/{id}/autosave", m.withMiddleware(m.handleAutosave))
	m.mux.HandleFunc("POST /v1/entry/{id}/ready", m.withMiddleware(m.handleMarkAsReady))
	m.mux.HandleFunc("POST /v1/entry/{id}/submit", m.withMiddleware(m.handleSubmit))
	m.mux.HandleFunc("POST /v1/entry/{id}/supersede", m.withMiddleware(m.handleSupersede))
	m.mux.HandleFunc("POST /v1/entry/{id}/archive", m.withMiddleware(m.handleArchive))
	m.mux.HandleFunc("GET /v1/entry/{id}/cards", m.withMiddleware(m.handleListCards))
	m.mux.HandleFunc("POST /v1/entry/{id}/snapshot", m.withMiddleware(m.handleCreateSnapshot))
	m.mux.HandleFunc("GET /v1/entry/{id}/snapshots", m.withMiddleware(m.handleListSnapshots))
	m.mux.HandleFunc("GET /v1/snapshot/{id}", m.withMiddleware(m.handleGetSnapshot))

	// Artifact storage endpoints
	m.mux.HandleFunc("POST /v1/entry/{id}/funds/{fundId}/photo-url", m.withMiddleware(m.handleFundPhotoUploadURL))
	m.mux.HandleFunc("GET /v1/media/url", m.withMiddleware(m.handleMediaDownloadURL))

	return m.mux, m.autosave
}

// withMiddleware applies CORS, correlation ID, JWT authentication and request
// logging to a handler. Every /v1 endpoint is authenticated; entry data is
// always user-scoped.
func (m *Mux) withMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// CORS headers when configured
		if len(m.corsAllowedOrigins) > 0 {
			origin := r.Header.Get("Origin")
			if origin != "" && m.originAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if r.Method == "OPTIONS" {
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-Id")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}
		}
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		// Add correlation ID if not present
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyCorrelationID, correlationID))
		w.Header().Set("X-Correlation-Id", correlationID)

		userID, err := m.validateJWT(r)
		if err != nil {
			var errorDef *errordefs.Error
			if e, ok := err.(*errordefs.Error); ok {
				errorDef = e
				errorDef.CorrelationID = correlationID
			} else {
				errorDef = errordefs.New(errordefs.ENTRY_AUTHZ, err.Error(), correlationID)
			}
			m.writeErrorDef(w, errorDef)
			m.logRequest(r, errorDef.HTTPStatus, time.Since(start), correlationID, err)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyUserID, userID))

		h(w, r)
		m.logRequest(r, http.StatusOK, time.Since(start), correlationID, nil)
	}
}

// originAllowed reports whether the Origin header matches the configured list.
func (m *Mux) originAllowed(origin string) bool {
	for _, allowed := range m.corsAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// validateJWT validates a traveler JWT and extracts the user id.
func (m *Mux) validateJWT(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errordefs.New(errordefs.ENTRY_AUTHN, "missing Authorization header", "")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errordefs.New(errordefs.ENTRY_AUTHN, "invalid Authorization header format", "")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	claims, err := m.jwksClient.ValidateJWT(r.Context(), tokenString, m.jwtIssuer, m.jwtAudience)
	if err != nil {
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "expired"):
			return "", errordefs.New(errordefs.ENTRY_JWT_EXPIRED, "JWT token expired", "")
		case strings.Contains(errStr, "invalid issuer"):
			return "", errordefs.New(errordefs.ENTRY_JWT_INVALID, "invalid JWT issuer", "")
		case strings.Contains(errStr, "invalid audience"):
			return "", errordefs.New(errordefs.ENTRY_JWT_INVALID, "invalid JWT audience", "")
		case strings.Contains(errStr, "kid"):
			return "", errordefs.New(errordefs.ENTRY_JWT_MALFORMED, "missing or invalid kid in JWT header", "")
		case strings.Contains(errStr, "signature"), strings.Contains(errStr, "verify"):
			return "", errordefs.New(errordefs.ENTRY_JWT_INVALID, "invalid JWT signature", "")
		default:
			return "", errordefs.New(errordefs.ENTRY_JWT_INVALID, fmt.Sprintf("failed to validate JWT: %v", err), "")
		}
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", errordefs.New(errordefs.ENTRY_JWT_INVALID, "missing or invalid sub claim", "")
	}
	return userID, nil
}

// requestIdentity pulls the request-scoped user and correlation ids.
func requestIdentity(ctx context.Context) (userID, correlationID string) {
	userID, _ = ctx.Value(ContextKeyUserID).(string)
	correlationID, _ = ctx.Value(ContextKeyCorrelationID).(string)
	return
}

// writeSuccess writes a successful response
func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"data": data,
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeError writes an error response following the entry error taxonomy
func (m *Mux) writeError(w http.ResponseWriter, statusCode int, code, message, correlationID string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"error": map[string]interface{}{
			"code":          code,
			"message":       message,
			"correlationId": correlationID,
		},
	}
	if details != nil {
		response["error"].(map[string]interface{})["details"] = details
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeErrorDef writes an error response using the error definitions package
func (m *Mux) writeErrorDef(w http.ResponseWriter, err *errordefs.Error) {
	m.writeError(w, err.HTTPStatus, string(err.Code), err.Message, err.CorrelationID, err.Details)
}

// writeServiceError maps service and storage sentinels onto the taxonomy.
func (m *Mux) writeServiceError(w http.ResponseWriter, correlationID string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, card.ErrNoCard):
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_NOT_FOUND, "not found", correlationID))
	case errors.Is(err, storage.ErrConflict):
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_CONFLICT, "conflict", correlationID))
	case errors.Is(err, entry.ErrUserMismatch):
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_USER_MISMATCH, "entry owned by a different user", correlationID))
	case errors.Is(err, entry.ErrNotEditable):
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_READ_ONLY, "entry is read-only in its current status", correlationID))
	case errors.Is(err, entry.ErrNotReady):
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_NOT_READY, "entry is not ready for submission", correlationID))
	case errors.Is(err, entry.ErrInvalidTransition):
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_INVALID_TRANSITION, err.Error(), correlationID))
	case errors.Is(err, entry.ErrSubmissionFailed):
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_SUBMISSION_FAILED, err.Error(), correlationID))
	default:
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_INTERNAL, "internal error", correlationID))
	}
}

// logRequest logs request details and records HTTP metrics
func (m *Mux) logRequest(r *http.Request, status int, duration time.Duration, correlationID string, err error) {
	statusStr := strconv.Itoa(status)
	m.metrics.HTTPRequestTotal.WithLabelValues(r.Method, r.URL.Path, statusStr).Inc()
	m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, statusStr).Observe(duration.Seconds())

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("user_agent", r.UserAgent()),
		slog.String("remote_addr", r.RemoteAddr),
	}
	if correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}
	if userID, ok := r.Context().Value(ContextKeyUserID).(string); ok && userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		slog.LogAttrs(r.Context(), slog.LevelError, "request completed with error", attrs...)
	} else {
		slog.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
	}
}

// handleHealthz handles liveness health check requests
func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz handles readiness health check requests
func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// A not-found on a probe id still proves the store is reachable.
	_, err := m.s.GetEntry(ctx, "health-check")
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleCreateEntry handles POST /v1/entry
func (m *Mux) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleCreateEntry")
	defer span.End()
	defer r.Body.Close()

	userID, correlationID := requestIdentity(ctx)

	var req model.CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "invalid JSON", correlationID))
		return
	}
	if req.DestinationID == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "destinationId is required", correlationID))
		return
	}
	span.SetAttributes(attribute.String("destination_id", req.DestinationID))

	e, err := m.svc.CreateEntry(ctx, userID, req.DestinationID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	m.writeSuccess(w, http.StatusCreated, e)
}

// handleListEntries handles GET /v1/entry
func (m *Mux) handleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleListEntries")
	defer span.End()

	userID, correlationID := requestIdentity(ctx)
	entries, err := m.svc.ListEntries(ctx, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	if entries == nil {
		entries = []model.EntryRecord{}
	}
	m.writeSuccess(w, http.StatusOK, entries)
}

// handleGetEntry handles GET /v1/entry/{id}. Buffered autosave state is
// flushed first so the caller always observes its own latest edits.
func (m *Mux) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleGetEntry")
	defer span.End()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")
	span.SetAttributes(attribute.String("entry_id", entryID))

	if err := m.autosave.Flush(ctx, entryID); err != nil {
		slog.Warn("autosave flush before read failed", "entryId", entryID, "error", err)
	}

	e, err := m.svc.GetEntry(ctx, userID, entryID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, e)
}

// handleMissingFields handles GET /v1/entry/{id}/missing
func (m *Mux) handleMissingFields(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleMissingFields")
	defer span.End()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")

	if err := m.autosave.Flush(ctx, entryID); err != nil {
		slog.Warn("autosave flush before read failed", "entryId", entryID, "error", err)
	}

	missing, err := m.svc.MissingFields(ctx, userID, entryID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, map[string]any{"missingFields": missing})
}

// decodeSections reads a SaveSectionsRequest body.
func decodeSections(r *http.Request) (model.SaveSectionsRequest, error) {
	defer r.Body.Close()
	var req model.SaveSectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	return req, nil
}

// handleSaveSections handles POST /v1/entry/{id}/sections, the synchronous
// multi-section save.
func (m *Mux) handleSaveSections(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleSaveSections")
	defer span.End()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")
	span.SetAttributes(attribute.String("entry_id", entryID))

	req, err := decodeSections(r)
	if err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "invalid JSON", correlationID))
		return
	}

	result, err := m.svc.SaveSections(ctx, userID, entryID, req)
	if errors.Is(err, entry.ErrAllSectionsFailed) {
		m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.ENTRY_SCHEMA_REJECT,
			"no section could be saved", correlationID, result.Outcomes))
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, result)
}

// handleAutosave handles POST /v1/entry/{id}/autosave: the buffered variant of
// the sections save. Returns 202 immediately; the flush happens after the
// debounce quiet period.
func (m *Mux) handleAutosave(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleAutosave")
	defer span.End()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")

	req, err := decodeSections(r)
	if err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "invalid JSON", correlationID))
		return
	}

	// Ownership is checked up front so a buffered save cannot fail later on a
	// foreign entry.
	if _, err := m.svc.GetEntry(ctx, userID, entryID); err != nil {
		m.writeServiceError(w, correlationID, err)
		return
	}

	m.autosave.Enqueue(userID, entryID, req)
	m.writeSuccess(w, http.StatusAccepted, map[string]any{"buffered": true})
}

// handleMarkAsReady handles POST /v1/entry/{id}/ready
func (m *Mux) handleMarkAsReady(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleMarkAsReady")
	defer span.End()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")

	// Promote only what the user actually typed: flush first.
	if err := m.autosave.Flush(ctx, entryID); err != nil {
		m.writeServiceError(w, correlationID, err)
		return
	}

	e, err := m.svc.MarkAsReady(ctx, userID, entryID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, e)
}

// handleSubmit handles POST /v1/entry/{id}/submit
func (m *Mux) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleSubmit")
	defer span.End()
	defer r.Body.Close()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")

	var req model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "invalid JSON", correlationID))
		return
	}
	if req.CardType == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "cardType is required", correlationID))
		return
	}
	span.SetAttributes(
		attribute.String("entry_id", entryID),
		attribute.String("card_type", req.CardType),
	)

	if err := m.autosave.Flush(ctx, entryID); err != nil {
		m.writeServiceError(w, correlationID, err)
		return
	}

	issued, err := m.svc.Submit(ctx, userID, entryID, req)
	if errors.Is(err, entry.ErrSubmissionFailed) {
		// The failed attempt is part of the card history; return it.
		m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.ENTRY_SUBMISSION_FAILED,
			"arrival-card submission failed", correlationID, issued))
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, issued)
}

// handleSupersede handles POST /v1/entry/{id}/supersede
func (m *Mux) handleSupersede(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleSupersede")
	defer span.End()
	defer r.Body.Close()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")

	var req model.SupersedeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "invalid JSON", correlationID))
		return
	}
	if req.Reason == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "reason is required", correlationID))
		return
	}

	e, err := m.svc.MarkAsSuperseded(ctx, userID, entryID, req.Reason)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, e)
}

// handleArchive handles POST /v1/entry/{id}/archive
func (m *Mux) handleArchive(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleArchive")
	defer span.End()
	defer r.Body.Close()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")

	var req model.ArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "invalid JSON", correlationID))
		return
	}

	if err := m.autosave.Flush(ctx, entryID); err != nil {
		slog.Warn("autosave flush before archive failed", "entryId", entryID, "error", err)
	}

	e, err := m.svc.Archive(ctx, userID, entryID, req.Reason)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, e)
}

// handleListCards handles GET /v1/entry/{id}/cards?type=tdac. With
// latest=true it returns only the newest successful card that has not been
// superseded, the one whose QR/PDF the traveler presents at the border.
func (m *Mux) handleListCards(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleListCards")
	defer span.End()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")
	cardType := r.URL.Query().Get("type")

	if _, err := m.svc.GetEntry(ctx, userID, entryID); err != nil {
		m.writeServiceError(w, correlationID, err)
		return
	}

	if r.URL.Query().Get("latest") == "true" {
		if cardType == "" {
			m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "type is required with latest=true", correlationID))
			return
		}
		live, err := m.svc.Cards().LatestSuccessful(ctx, entryID, cardType)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			m.writeServiceError(w, correlationID, err)
			return
		}
		m.writeSuccess(w, http.StatusOK, live)
		return
	}

	cards, err := m.svc.Cards().History(ctx, entryID, cardType)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	if cards == nil {
		cards = []model.DigitalArrivalCard{}
	}
	m.writeSuccess(w, http.StatusOK, cards)
}

// handleCreateSnapshot handles POST /v1/entry/{id}/snapshot
func (m *Mux) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleCreateSnapshot")
	defer span.End()
	defer r.Body.Close()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")

	var req model.SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "invalid JSON", correlationID))
		return
	}
	if req.Reason == "" {
		req.Reason = snapshot.ReasonCompleted
	}
	span.SetAttributes(attribute.String("reason", req.Reason))

	if err := m.autosave.Flush(ctx, entryID); err != nil {
		m.writeServiceError(w, correlationID, err)
		return
	}

	rec, err := m.svc.CreateSnapshot(ctx, userID, entryID, req.Reason, req.Metadata)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	m.copyPhotoManifest(ctx, rec)
	m.writeSuccess(w, http.StatusCreated, rec)
}

// copyPhotoManifest runs the snapshot photo pipeline: each pending fund photo
// is copied into the snapshot-owned prefix so later edits to the live object
// cannot touch the frozen pack. Failures mark the manifest entry and move on.
func (m *Mux) copyPhotoManifest(ctx context.Context, rec *model.SnapshotRecord) {
	if m.media == nil || len(rec.PhotoManifest) == 0 {
		return
	}
	snap := snapshot.FromRecord(*rec)
	manifest := snap.PhotoManifest()
	changed := false
	for i, pc := range manifest {
		if pc.Stage != model.PhotoCopyPending {
			continue
		}
		destKey, err := m.media.CopyToSnapshot(ctx, rec.ID, pc.SourceURI)
		if err != nil {
			slog.Warn("snapshot photo copy failed",
				"snapshotId", rec.ID, "fundItemId", pc.FundItemID, "error", err)
			manifest[i].Stage = model.PhotoCopyFailed
		} else {
			manifest[i].CopyURI = destKey
			manifest[i].Stage = model.PhotoCopyCopied
		}
		manifest[i].UpdatedAt = time.Now().UTC()
		changed = true
	}
	if !changed {
		return
	}
	updated := snap.WithPhotoManifest(manifest).Record()
	if err := m.s.SaveSnapshot(ctx, updated); err != nil {
		slog.Warn("persisting photo manifest failed", "snapshotId", rec.ID, "error", err)
		return
	}
	*rec = updated
}

// handleFundPhotoUploadURL handles POST /v1/entry/{id}/funds/{fundId}/photo-url.
// The client uploads the photo straight to S3 with the presigned URL, then
// saves the returned key as the fund item's photoUri.
func (m *Mux) handleFundPhotoUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleFundPhotoUploadURL")
	defer span.End()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")
	fundID := r.PathValue("fundId")

	if m.media == nil {
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_UNAVAILABLE, "artifact storage not configured", correlationID))
		return
	}
	if _, err := m.svc.GetEntry(ctx, userID, entryID); err != nil {
		m.writeServiceError(w, correlationID, err)
		return
	}

	key := fmt.Sprintf("funds/%s/%s", entryID, fundID)
	url, err := m.media.GenerateUploadURL(ctx, key, 15*time.Minute)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_INTERNAL, "failed to generate upload URL", correlationID))
		return
	}
	m.writeSuccess(w, http.StatusOK, map[string]string{"uploadUrl": url, "key": key})
}

// handleMediaDownloadURL handles GET /v1/media/url?key=...
func (m *Mux) handleMediaDownloadURL(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleMediaDownloadURL")
	defer span.End()

	_, correlationID := requestIdentity(ctx)

	if m.media == nil {
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_UNAVAILABLE, "artifact storage not configured", correlationID))
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_VALIDATION, "key is required", correlationID))
		return
	}

	url, err := m.media.GenerateDownloadURL(ctx, key, 15*time.Minute)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeErrorDef(w, errordefs.New(errordefs.ENTRY_INTERNAL, "failed to generate download URL", correlationID))
		return
	}
	m.writeSuccess(w, http.StatusOK, map[string]string{"downloadUrl": url})
}

// handleListSnapshots handles GET /v1/entry/{id}/snapshots
func (m *Mux) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleListSnapshots")
	defer span.End()

	userID, correlationID := requestIdentity(ctx)
	entryID := r.PathValue("id")

	if _, err := m.svc.GetEntry(ctx, userID, entryID); err != nil {
		m.writeServiceError(w, correlationID, err)
		return
	}

	snaps, err := m.s.ListSnapshotsByEntry(ctx, entryID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	if snaps == nil {
		snaps = []model.SnapshotRecord{}
	}
	m.writeSuccess(w, http.StatusOK, snaps)
}

// handleGetSnapshot handles GET /v1/snapshot/{id}
func (m *Mux) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entry-service").Start(r.Context(), "handleGetSnapshot")
	defer span.End()

	userID, correlationID := requestIdentity(ctx)
	snapshotID := r.PathValue("id")
	span.SetAttributes(attribute.String("snapshot_id", snapshotID))

	rec, err := m.svc.GetSnapshot(ctx, userID, snapshotID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeServiceError(w, correlationID, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, rec)
}
