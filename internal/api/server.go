// Package api exposes the HTTP interface: company management, manual scan
// triggers, and event acknowledgement. The API only enqueues work; it never
// fetches external content.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/id/uuid"
	"github.com/oversift/trustwatch/internal/metrics"
	"github.com/oversift/trustwatch/internal/trust"
)

// Stores is the persistence surface the API needs.
type Stores interface {
	trust.CompanyStore
	trust.TargetStore
	trust.EventStore
	trust.RunStore
}

// ReadyChecker reports whether a downstream dependency is reachable.
type ReadyChecker func(ctx context.Context) error

// Server wires HTTP handlers to the stores and the job queue.
type Server struct {
	router     chi.Router
	stores     Stores
	enqueuer   trust.Enqueuer
	idGen      *uuid.Generator
	clock      trust.Clock
	defaultUID string
	ready      []ReadyChecker
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. defaultUserID
// is the fallback identity for demo deployments without an auth gateway.
func NewServer(stores Stores, enqueuer trust.Enqueuer, clock trust.Clock, defaultUserID string, logger *zap.Logger, ready ...ReadyChecker) *Server {
	s := &Server{
		stores:     stores,
		enqueuer:   enqueuer,
		idGen:      uuid.NewUUIDGenerator(),
		clock:      clock,
		defaultUID: defaultUserID,
		ready:      ready,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/companies", func(r chi.Router) {
			r.Post("/", s.createCompany)
			r.Get("/", s.listCompanies)
			r.Route("/{company_id}", func(r chi.Router) {
				r.Get("/", s.getCompany)
				r.Delete("/", s.deleteCompany)
			})
		})
		r.Post("/crawl/run", s.runCrawl)
		r.Get("/events", s.listEvents)
		r.Post("/events/{event_id}/ack", s.ackEvent)
		r.Get("/runs", s.listRuns)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.ready {
		if err := check(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// userID resolves the caller identity. Authentication proper lives in the
// gateway; the API trusts the forwarded user header.
func (s *Server) userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return s.defaultUID
}

type createCompanyRequest struct {
	Domain      string   `json:"domain"`
	DisplayName string   `json:"displayName"`
	Categories  []string `json:"categories"`
}

func (s *Server) createCompany(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	var req createCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	if len(req.Categories) == 0 {
		writeError(w, http.StatusBadRequest, "at least one category is required")
		return
	}
	categories := make([]trust.Category, 0, len(req.Categories))
	for _, c := range req.Categories {
		cat := trust.Category(c)
		if !trust.ValidCategory(cat) {
			writeError(w, http.StatusBadRequest, "unknown category: "+c)
			return
		}
		categories = append(categories, cat)
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Domain
	}

	now := s.clock.Now()
	company := trust.Company{
		ID:          s.idGen.MustID(),
		DisplayName: displayName,
		Domain:      req.Domain,
		Categories:  categories,
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.stores.CreateCompany(r.Context(), company); err != nil {
		s.internalError(w, "create company", err)
		return
	}

	var targets []trust.CrawlTarget
	for _, u := range trust.SeedURLs(req.Domain, categories) {
		targets = append(targets, trust.CrawlTarget{
			ID:        s.idGen.MustID(),
			CompanyID: company.ID,
			URL:       u,
			Kind:      trust.TargetSeed,
			CreatedAt: now,
		})
	}
	if err := s.stores.CreateTargets(r.Context(), targets); err != nil {
		s.internalError(w, "create targets", err)
		return
	}
	if err := s.enqueueTargets(r.Context(), company.ID, targets); err != nil {
		s.internalError(w, "enqueue crawl jobs", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"company": company,
		"targets": targets,
	})
}

func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.stores.ListCompaniesByUser(r.Context(), s.userID(r))
	if err != nil {
		s.internalError(w, "list companies", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	company, ok := s.ownedCompany(w, r)
	if !ok {
		return
	}
	targets, err := s.stores.ListTargets(r.Context(), company.ID)
	if err != nil {
		s.internalError(w, "list targets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"company": company, "targets": targets})
}

func (s *Server) deleteCompany(w http.ResponseWriter, r *http.Request) {
	company, ok := s.ownedCompany(w, r)
	if !ok {
		return
	}
	if err := s.stores.DeleteCompany(r.Context(), company.ID); err != nil {
		s.internalError(w, "delete company", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type runCrawlRequest struct {
	CompanyID string `json:"companyId"`
}

func (s *Server) runCrawl(w http.ResponseWriter, r *http.Request) {
	var req runCrawlRequest
	if r.Body != nil {
		// An empty body means "scan everything I own".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var companies []trust.Company
	if req.CompanyID != "" {
		company, err := s.stores.GetCompany(r.Context(), req.CompanyID)
		if errors.Is(err, trust.ErrNotFound) || (err == nil && company.UserID != s.userID(r)) {
			writeError(w, http.StatusNotFound, "company not found")
			return
		}
		if err != nil {
			s.internalError(w, "get company", err)
			return
		}
		companies = []trust.Company{company}
	} else {
		owned, err := s.stores.ListCompaniesByUser(r.Context(), s.userID(r))
		if err != nil {
			s.internalError(w, "list companies", err)
			return
		}
		companies = owned
	}

	enqueued := 0
	for _, company := range companies {
		targets, err := s.stores.ListTargets(r.Context(), company.ID)
		if err != nil {
			s.internalError(w, "list targets", err)
			return
		}
		if err := s.enqueueTargets(r.Context(), company.ID, targets); err != nil {
			s.internalError(w, "enqueue crawl jobs", err)
			return
		}
		enqueued += len(targets)
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"enqueued": enqueued})
}

func (s *Server) ackEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "event_id")
	err := s.stores.AckEvent(r.Context(), eventID, s.userID(r))
	if errors.Is(err, trust.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		s.internalError(w, "ack event", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"acknowledged": true})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	filter := trust.EventFilter{
		CompanyID:      r.URL.Query().Get("companyId"),
		Severity:       trust.Severity(r.URL.Query().Get("severity")),
		Unacknowledged: r.URL.Query().Get("unacknowledged") == "true",
	}
	events, err := s.stores.ListEvents(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.stores.ListRuns(r.Context(), 50)
	if err != nil {
		s.internalError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) ownedCompany(w http.ResponseWriter, r *http.Request) (trust.Company, bool) {
	companyID := chi.URLParam(r, "company_id")
	company, err := s.stores.GetCompany(r.Context(), companyID)
	if errors.Is(err, trust.ErrNotFound) {
		writeError(w, http.StatusNotFound, "company not found")
		return trust.Company{}, false
	}
	if err != nil {
		s.internalError(w, "get company", err)
		return trust.Company{}, false
	}
	if company.UserID != s.userID(r) {
		writeError(w, http.StatusNotFound, "company not found")
		return trust.Company{}, false
	}
	return company, true
}

func (s *Server) enqueueTargets(ctx context.Context, companyID string, targets []trust.CrawlTarget) error {
	for _, target := range targets {
		payload := trust.CrawlPayload{
			CompanyID: companyID,
			TargetID:  target.ID,
			URL:       target.URL,
		}
		if _, err := s.enqueuer.Enqueue(ctx, trust.QueueCrawlTarget, payload, trust.CrawlKey(companyID, target.ID), trust.PriorityCrawl); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.logger.Error(action+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
