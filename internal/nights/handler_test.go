package nights

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"sleepstage-service/internal/sleepstage"

	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return newTestHandlerWithSource(t, nil)
}

func newTestHandlerWithSource(t *testing.T, src SampleSource) *Handler {
	t.Helper()
	svc := NewService(NewInMemoryRepository(), 7)
	svc.now = func() time.Time { return t0.Add(8 * time.Hour) }
	if src != nil {
		svc.WithSampleSource(src)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHandler(svc, log, nil)
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/nights", h.CreateNight)
	r.Route("/nights/{night_id}", func(r chi.Router) {
		r.Post("/samples", h.AddSamples)
		r.Post("/import", h.ImportSamples)
		r.Post("/stage", h.StageNight)
		r.Get("/segments", h.GetSegments)
		r.Get("/segments.xlsx", h.ExportSegments)
	})
	r.Get("/summary", h.GetSummary)
	return r
}

func do(t *testing.T, r http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createNight(t *testing.T, r http.Handler) NightID {
	t.Helper()
	rec := do(t, r, http.MethodPost, "/nights", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("setup: expected 201, got %d", rec.Code)
	}
	var resp nightCreatedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("setup: decode: %v", err)
	}
	return resp.NightID
}

func TestHandler_CreateNight(t *testing.T) {
	r := newTestRouter(newTestHandler(t))
	id := createNight(t, r)
	if id == "" {
		t.Error("expected night_id in response")
	}
}

func TestHandler_AddSamples(t *testing.T) {
	r := newTestRouter(newTestHandler(t))
	id := createNight(t, r)

	b, _ := json.Marshal(nightBatch())
	rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/samples", b)
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestHandler_AddSamples_bad_request(t *testing.T) {
	r := newTestRouter(newTestHandler(t))
	id := createNight(t, r)

	rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/samples", []byte("not json"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}

	invalid := []byte(`{"motion":[{"timestamp":"2026-03-01T00:00:00Z","level":7}]}`)
	rec = do(t, r, http.MethodPost, "/nights/"+string(id)+"/samples", invalid)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid batch: expected 400, got %d", rec.Code)
	}
}

func TestHandler_AddSamples_not_found(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec := do(t, r, http.MethodPost, "/nights/missing/samples", []byte(`{}`))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_StageNight_and_GetSegments(t *testing.T) {
	r := newTestRouter(newTestHandler(t))
	id := createNight(t, r)

	b, _ := json.Marshal(nightBatch())
	if rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/samples", b); rec.Code != http.StatusAccepted {
		t.Fatalf("setup: expected 202, got %d", rec.Code)
	}

	// Not staged yet.
	if rec := do(t, r, http.MethodGet, "/nights/"+string(id)+"/segments", nil); rec.Code != http.StatusConflict {
		t.Errorf("before staging: expected 409, got %d", rec.Code)
	}

	rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/stage", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stage: expected 200, got %d", rec.Code)
	}
	var staged segmentsResponse
	if err := json.NewDecoder(rec.Body).Decode(&staged); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(staged.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(staged.Segments))
	}
	if staged.Segments[0].Stage != "inBed" || staged.Segments[1].Stage != "deepSleep" {
		t.Errorf("unexpected stages %q, %q", staged.Segments[0].Stage, staged.Segments[1].Stage)
	}

	rec = do(t, r, http.MethodGet, "/nights/"+string(id)+"/segments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("segments: expected 200, got %d", rec.Code)
	}
	var got segmentsResponse
	json.NewDecoder(rec.Body).Decode(&got)
	if got.NightID != id || len(got.Segments) != 2 {
		t.Errorf("unexpected segments response %+v", got)
	}
}

func TestHandler_StageNight_body(t *testing.T) {
	r := newTestRouter(newTestHandler(t))
	id := createNight(t, r)
	b, _ := json.Marshal(nightBatch())
	do(t, r, http.MethodPost, "/nights/"+string(id)+"/samples", b)

	t.Run("explicit_range", func(t *testing.T) {
		body := []byte(`{"range_start":"2026-03-01T00:00:00Z","range_end":"2026-03-01T01:00:00Z","epoch_seconds":60}`)
		rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/stage", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp segmentsResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		last := resp.Segments[len(resp.Segments)-1]
		if !last.End.Equal(t0.Add(time.Hour)) {
			t.Errorf("expected last segment to end at 01:00, got %v", last.End)
		}
	})

	t.Run("half_range", func(t *testing.T) {
		body := []byte(`{"range_start":"2026-03-01T00:00:00Z"}`)
		if rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/stage", body); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("negative_epoch", func(t *testing.T) {
		if rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/stage", []byte(`{"epoch_seconds":-5}`)); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown_night", func(t *testing.T) {
		if rec := do(t, r, http.MethodPost, "/nights/missing/stage", nil); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestHandler_ExportSegments(t *testing.T) {
	r := newTestRouter(newTestHandler(t))
	id := createNight(t, r)
	b, _ := json.Marshal(nightBatch())
	do(t, r, http.MethodPost, "/nights/"+string(id)+"/samples", b)
	do(t, r, http.MethodPost, "/nights/"+string(id)+"/stage", nil)

	rec := do(t, r, http.MethodGet, "/nights/"+string(id)+"/segments.xlsx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("unexpected Content-Type %q", ct)
	}
	// xlsx files are zip archives.
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("expected zip payload")
	}
}

func TestHandler_ImportSamples(t *testing.T) {
	t.Run("no_source", func(t *testing.T) {
		r := newTestRouter(newTestHandler(t))
		id := createNight(t, r)
		rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/import?from=2026-03-01T00:00:00Z&to=2026-03-01T07:00:00Z", nil)
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("expected 501, got %d", rec.Code)
		}
	})

	t.Run("bad_query", func(t *testing.T) {
		r := newTestRouter(newTestHandler(t))
		id := createNight(t, r)
		rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/import?from=yesterday", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("imported", func(t *testing.T) {
		r := newTestRouter(newTestHandlerWithSource(t, &stubSource{batch: nightBatch()}))
		id := createNight(t, r)
		rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/import?from=2026-03-01T00:00:00Z&to=2026-03-01T07:00:00Z", nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		var resp importResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Imported != nightBatch().Size() {
			t.Errorf("expected %d imported, got %d", nightBatch().Size(), resp.Imported)
		}
	})

	t.Run("upstream_failure", func(t *testing.T) {
		r := newTestRouter(newTestHandlerWithSource(t, &stubSource{err: errors.New("timeout")}))
		id := createNight(t, r)
		rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/import?from=2026-03-01T00:00:00Z&to=2026-03-01T07:00:00Z", nil)
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
	})
}

func TestHandler_GetSummary(t *testing.T) {
	h := newTestHandler(t)
	r := newTestRouter(h)
	id := createNight(t, r)
	b, _ := json.Marshal(nightBatch())
	do(t, r, http.MethodPost, "/nights/"+string(id)+"/samples", b)
	do(t, r, http.MethodPost, "/nights/"+string(id)+"/stage", nil)

	rec := do(t, r, http.MethodGet, "/summary?window_days=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sum Summary
	if err := json.NewDecoder(rec.Body).Decode(&sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.WindowDays != 1 || sum.TotalSleepHours != 6.5 || sum.SleepEfficiency != 1300 {
		t.Errorf("unexpected summary %+v", sum)
	}

	for _, q := range []string{"0", "-2", "week"} {
		if rec := do(t, r, http.MethodGet, "/summary?window_days="+q, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("window_days=%s: expected 400, got %d", q, rec.Code)
		}
	}

	// One night was created through the router.
	if n, _ := h.svc.NightCount(context.Background()); n != 1 {
		t.Errorf("expected 1 night, got %d", n)
	}
}

func TestHandler_StageNight_limits(t *testing.T) {
	r := newTestRouter(newTestHandler(t))
	id := createNight(t, r)
	b, _ := json.Marshal(nightBatch())
	do(t, r, http.MethodPost, "/nights/"+string(id)+"/samples", b)

	for name, body := range map[string]string{
		"huge_epoch":     `{"epoch_seconds":9223372036854}`,
		"epoch_over_max": `{"epoch_seconds":3601}`,
		"span_too_long":  `{"range_start":"2026-03-01T00:00:00Z","range_end":"2026-04-01T00:00:00Z"}`,
	} {
		t.Run(name, func(t *testing.T) {
			if rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/stage", []byte(body)); rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}

	if rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/stage", []byte(`{"epoch_seconds":3600}`)); rec.Code != http.StatusOK {
		t.Errorf("epoch_seconds at the maximum: expected 200, got %d", rec.Code)
	}
}

func TestHandler_AddSamples_missing_timestamp(t *testing.T) {
	r := newTestRouter(newTestHandler(t))
	id := createNight(t, r)

	rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/samples", []byte(`{"heart_rate":[{"value":50}]}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_ImportSamples_invalid_upstream_batch(t *testing.T) {
	bad := SampleBatch{HRV: []sleepstage.Sample{{Value: 20}}}
	r := newTestRouter(newTestHandlerWithSource(t, &stubSource{batch: bad}))
	id := createNight(t, r)

	rec := do(t, r, http.MethodPost, "/nights/"+string(id)+"/import?from=2026-03-01T00:00:00Z&to=2026-03-01T07:00:00Z", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}
