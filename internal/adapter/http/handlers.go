package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/fanout"
	"github.com/couchcryptid/incident-triage-service/internal/lifecycle"
	"github.com/couchcryptid/incident-triage-service/internal/zone"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

type handler struct {
	svc    *lifecycle.Service
	router *fanout.Router
	logger *slog.Logger
}

type submitResponse struct {
	IncidentID string          `json:"incident_id"`
	District   string          `json:"district"`
	Status     domain.Status   `json:"status"`
	Scores     domain.ScoreSet `json:"scores"`
}

func (h *handler) submitReport(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	identity := identityFrom(r.Context())
	if id := strings.TrimSpace(req.ReporterID); id != "" && id != identity {
		writeError(w, http.StatusForbidden, "reporter_id does not match "+HeaderIdentity)
		return
	}
	req.ReporterID = identity

	inc, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		IncidentID: inc.ID,
		District:   inc.District,
		Status:     inc.Status,
		Scores:     inc.Scores,
	})
}

type previewRequest struct {
	Description string `json:"description"`
}

type previewResponse struct {
	Score         float64  `json:"score"`
	EmergencyType string   `json:"emergency_type"`
	CrisisLevel   string   `json:"crisis_level"`
	Keywords      []string `json:"keywords"`
	Confidence    float64  `json:"confidence"`
}

func (h *handler) previewSeverity(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusUnprocessableEntity, "description is required")
		return
	}
	c := h.svc.PreviewSeverity(req.Description)
	keywords := c.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	writeJSON(w, http.StatusOK, previewResponse{
		Score:         c.Score,
		EmergencyType: c.EmergencyType,
		CrisisLevel:   c.CrisisLevel,
		Keywords:      keywords,
		Confidence:    c.Confidence,
	})
}

func (h *handler) pendingIncidents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	incidents, err := h.svc.PendingIncidents(r.Context(), r.URL.Query().Get("district"), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": nonNil(incidents)})
}

func (h *handler) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.svc.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type forwardResponse struct {
	CrisisID string              `json:"crisis_id"`
	Crisis   domain.CrisisRecord `json:"crisis"`
}

func (h *handler) forwardIncident(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Forward(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forwardResponse{CrisisID: c.ID, Crisis: c})
}

func (h *handler) dismissIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.svc.Dismiss(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *handler) resolveIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *handler) listCrises(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	crises, err := h.svc.Crises(r.Context(), q.Get("authority"), domain.CrisisStatus(q.Get("status")), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"crises": nonNil(crises)})
}

func (h *handler) getCrisis(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCrisis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) closeCrisis(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.CloseCrisis(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type publishRequest struct {
	Kind       domain.MessageKind `json:"kind"`
	Audience   domain.Audience    `json:"audience"`
	Severity   string             `json:"severity"`
	Title      string             `json:"title"`
	Body       string             `json:"body"`
	AuthorName string             `json:"author_name"`
	IncidentID string             `json:"incident_id"`
}

func (h *handler) publishMessage(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.router.Publish(r.Context(), domain.ZoneMessage{
		Kind:       req.Kind,
		District:   chi.URLParam(r, "district"),
		Audience:   req.Audience,
		Severity:   req.Severity,
		AuthorID:   identityFrom(r.Context()),
		AuthorName: req.AuthorName,
		Title:      req.Title,
		Body:       req.Body,
		IncidentID: req.IncidentID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *handler) fetchMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	audience := domain.Audience(r.URL.Query().Get("audience"))
	if audience == "" {
		audience = domain.AudienceCitizens
	}
	msgs, err := h.router.FetchFor(r.Context(), chi.URLParam(r, "district"), audience, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": nonNil(msgs)})
}

type subscribeRequest struct {
	Audience domain.Audience `json:"audience"`
}

func (h *handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Audience == "" {
		req.Audience = domain.AudienceCitizens
	}
	district := chi.URLParam(r, "district")
	if err := h.router.Subscribe(r.Context(), district, req.Audience, identityFrom(r.Context())); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) trustProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.TrustProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) listDistricts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"districts": zone.Districts()})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// writeServiceError maps domain sentinel errors to status codes. Anything
// unrecognized is logged and reported as a 500 without detail.
func (h *handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnknownDistrict):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrZoneUnresolved):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed",
			"request_id", requestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // headers are already sent
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
