package audit

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/studiodesk/pkg/httputil"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

// Handlers exposes the pipeline and reader over HTTP
type Handlers struct {
	pipeline *Pipeline
	reader   *Reader
	logger   *observability.Logger
}

// NewHandlers creates audit handlers
func NewHandlers(pipeline *Pipeline, reader *Reader, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{pipeline: pipeline, reader: reader, logger: logger}
}

// RegisterRoutes registers audit log routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.createEvent).Methods(http.MethodPost)
	router.HandleFunc("/audit/events", h.listEvents).Methods(http.MethodGet)
	router.HandleFunc("/audit/events/{id}", h.getEvent).Methods(http.MethodGet)
	router.HandleFunc("/audit/export", h.exportEvents).Methods(http.MethodGet)
	router.HandleFunc("/audit/stats", h.getStats).Methods(http.MethodGet)
}

// createEvent handles POST /audit/events
func (h *Handlers) createEvent(w http.ResponseWriter, r *http.Request) {
	var event Event
	if !httputil.ParseJSONOrError(w, r, &event) {
		return
	}

	record, err := h.pipeline.Log(r.Context(), &event)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, record)
}

// listEvents handles GET /audit/events
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	records, err := h.reader.Query(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": records,
		"count":  len(records),
		"limit":  EffectiveLimit(filter.Limit),
	})
}

// getEvent handles GET /audit/events/{id}
func (h *Handlers) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	record, err := h.reader.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

// exportEvents handles GET /audit/export. It goes through the reader, so
// the same role check and row cap apply.
func (h *Handlers) exportEvents(w http.ResponseWriter, r *http.Request) {
	format, err := ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	records, err := h.reader.Query(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	contentType, ext := format.ContentType()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=audit-logs.%s", ext))
	if err := Export(w, format, records); err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("audit export failed mid-stream")
	}
}

// getStats handles GET /audit/stats
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	stats, err := h.reader.Stats(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteDetailedError(w, http.StatusBadRequest, ErrInvalidEvent.Error(), verr.Fields)
	case errors.Is(err, ErrInvalidEvent):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, ErrNotAuthenticated):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, ErrForbidden):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFound(w, err.Error())
	default:
		h.logger.WithContext(r.Context()).WithError(err).Error("audit request failed")
		httputil.WriteInternalError(w)
	}
}

// parseFilter reads user_id, action, entity_type, from, to and limit
func parseFilter(r *http.Request) (Filter, error) {
	filter := Filter{
		UserID:     httputil.ParseQueryString(r, "user_id", ""),
		Action:     Action(httputil.ParseQueryString(r, "action", "")),
		EntityType: EntityType(httputil.ParseQueryString(r, "entity_type", "")),
	}

	var err error
	if filter.From, err = httputil.ParseQueryTime(r, "from"); err != nil {
		return Filter{}, err
	}
	if filter.To, err = httputil.ParseQueryTime(r, "to"); err != nil {
		return Filter{}, err
	}
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", 0); err != nil {
		return Filter{}, err
	}
	return filter, nil
}
