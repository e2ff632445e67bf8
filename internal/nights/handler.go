package nights

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"sleepstage-service/internal/export/xlsx"
	"sleepstage-service/internal/platform/metrics"
	"sleepstage-service/internal/sleepstage"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxEpochSeconds is the widest epoch a staging request may ask for.
const maxEpochSeconds = 3600

// Handler exposes night ingestion and staging endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

type stageRequest struct {
	RangeStart   *time.Time `json:"range_start"`
	RangeEnd     *time.Time `json:"range_end"`
	EpochSeconds int        `json:"epoch_seconds"`
}

type nightCreatedResponse struct {
	NightID NightID `json:"night_id"`
}

type segmentsResponse struct {
	NightID  NightID         `json:"night_id"`
	Segments []segmentRecord `json:"segments"`
}

type segmentRecord struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Stage string    `json:"stage"`
	Depth float64   `json:"depth"`
}

type importResponse struct {
	Imported int `json:"imported"`
}

// CreateNight handles POST /nights.
func (h *Handler) CreateNight(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.CreateNight(r.Context())
	if err != nil {
		h.log.Error("create night failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.log.Info("night created", slog.String("night_id", string(id)))
	writeJSON(w, http.StatusCreated, nightCreatedResponse{NightID: id})
	if h.metrics != nil {
		h.metrics.IncNightsCreated()
	}
}

// AddSamples handles POST /nights/{night_id}/samples.
// Body: { "heart_rate": [{"timestamp": "...", "value": 52}], "hrv": [...], "motion": [...], "annotations": [...] }.
func (h *Handler) AddSamples(w http.ResponseWriter, r *http.Request) {
	id := NightID(chi.URLParam(r, "night_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var b SampleBatch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		h.log.Debug("invalid sample body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.AddSamples(r.Context(), id, b); err != nil {
		h.writeServiceError(w, id, "add samples", err)
		return
	}

	h.log.Debug("samples added",
		slog.String("night_id", string(id)),
		slog.Int("records", b.Size()))
	w.WriteHeader(http.StatusAccepted)
	if h.metrics != nil {
		h.metrics.AddSamplesIngested(b.Size())
	}
}

// ImportSamples handles POST /nights/{night_id}/import?from=...&to=... (RFC 3339).
func (h *Handler) ImportSamples(w http.ResponseWriter, r *http.Request) {
	id := NightID(chi.URLParam(r, "night_id"))
	from, errFrom := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, errTo := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if id == "" || errFrom != nil || errTo != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	n, err := h.svc.Import(r.Context(), id, from, to)
	if err != nil {
		h.writeServiceError(w, id, "import samples", err)
		return
	}

	h.log.Info("samples imported",
		slog.String("night_id", string(id)),
		slog.Int("records", n))
	writeJSON(w, http.StatusAccepted, importResponse{Imported: n})
	if h.metrics != nil {
		h.metrics.AddSamplesIngested(n)
	}
}

// StageNight handles POST /nights/{night_id}/stage.
// Body (optional): { "range_start": "...", "range_end": "...", "epoch_seconds": 30 }.
func (h *Handler) StageNight(w http.ResponseWriter, r *http.Request) {
	id := NightID(chi.URLParam(r, "night_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req stageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug("invalid stage body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.EpochSeconds < 0 || req.EpochSeconds > maxEpochSeconds || (req.RangeStart == nil) != (req.RangeEnd == nil) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	start := time.Now()
	segments, err := h.svc.Stage(r.Context(), id, StageOptions{
		RangeStart: req.RangeStart,
		RangeEnd:   req.RangeEnd,
		EpochWidth: time.Duration(req.EpochSeconds) * time.Second,
	})
	if err != nil {
		h.writeServiceError(w, id, "stage night", err)
		return
	}

	h.log.Info("night staged",
		slog.String("night_id", string(id)),
		slog.Int("segments", len(segments)))
	writeJSON(w, http.StatusOK, toSegmentsResponse(id, segments))
	if h.metrics != nil {
		h.metrics.IncNightsStaged()
		h.metrics.AddSegmentsProduced(len(segments))
		h.metrics.ObserveStagingDuration(time.Since(start))
	}
}

// GetSegments handles GET /nights/{night_id}/segments.
func (h *Handler) GetSegments(w http.ResponseWriter, r *http.Request) {
	id := NightID(chi.URLParam(r, "night_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	segments, err := h.svc.Segments(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, id, "get segments", err)
		return
	}
	writeJSON(w, http.StatusOK, toSegmentsResponse(id, segments))
}

// ExportSegments handles GET /nights/{night_id}/segments.xlsx.
func (h *Handler) ExportSegments(w http.ResponseWriter, r *http.Request) {
	id := NightID(chi.URLParam(r, "night_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	segments, err := h.svc.Segments(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, id, "export segments", err)
		return
	}

	data, err := xlsx.WriteSegments(segments)
	if err != nil {
		h.log.Error("export segments failed", slog.String("night_id", string(id)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=night-"+string(id)+".xlsx")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetSummary handles GET /summary?window_days=N.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	windowDays := 0
	if s := r.URL.Query().Get("window_days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		windowDays = n
	}

	sum, err := h.svc.Summary(r.Context(), windowDays)
	if err != nil {
		h.log.Error("summary failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// writeServiceError maps service errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, id NightID, op string, err error) {
	switch {
	case errors.Is(err, ErrNightNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrInvalidBatch):
		h.log.Info(op+" rejected",
			slog.String("night_id", string(id)),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, ErrInvalidRange):
		h.log.Info(op+" rejected",
			slog.String("night_id", string(id)),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, ErrNotStaged), errors.Is(err, ErrStaleRevision):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, ErrNoSampleSource):
		w.WriteHeader(http.StatusNotImplemented)
	case errors.Is(err, ErrUpstream):
		h.log.Warn(op+" upstream failure",
			slog.String("night_id", string(id)),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
	default:
		h.log.Error(op+" failed",
			slog.String("night_id", string(id)),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func toSegmentsResponse(id NightID, segments []sleepstage.Segment) segmentsResponse {
	out := segmentsResponse{NightID: id, Segments: make([]segmentRecord, 0, len(segments))}
	for _, s := range segments {
		out.Segments = append(out.Segments, segmentRecord{
			Start: s.Start,
			End:   s.End,
			Stage: string(s.Stage),
			Depth: s.Stage.Depth(),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
