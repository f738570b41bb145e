package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/apresai/dubcast/internal/genmodel"
	"github.com/apresai/dubcast/internal/orchestrator"
	"github.com/apresai/dubcast/internal/tts"
)

type fixedBackend struct{ text string }

func (b *fixedBackend) Call(ctx context.Context, region, model, prompt string) (string, genmodel.Outcome, error) {
	return b.text, genmodel.OutcomeSuccess, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	backend := &fixedBackend{text: "title: \nprocessed_at: \n\n[0:00:00] hola mundo\n"}
	o, err := orchestrator.New(context.Background(), orchestrator.Config{TempDir: t.TempDir(), Backend: backend})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}

	catalog := &tts.Catalog{}
	providers := tts.NewProviderSet()
	return New(o, providers, catalog, nil, nil)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %+v", body)
	}
}

func TestHandleSubmitTranslateThenGetJob(t *testing.T) {
	s := newTestServer(t)
	router := s.Routes()

	payload := `{"transcript":"title: \nprocessed_at: \n\n[0:00:00] hello world\n","target_lang":"es"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/translate", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var submitResp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &submitResp); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	id := submitResp["job_id"]
	if id == "" {
		t.Fatal("expected a non-empty job_id")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for job status, got %d", getRec.Code)
	}
}

func TestHandleSubmitMissingURLReturns400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/transcribe", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing url, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleGetJobNotFoundReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleCancelUnknownJobIsNoOp(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/does-not-exist/cancel", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestHandleCostComparisonRequiresText(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/tts-cost-comparison", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when text is missing, got %d", rec.Code)
	}
}

func TestHandleCostComparisonReturnsQuotesField(t *testing.T) {
	s := newTestServer(t)
	s.catalog = &tts.Catalog{}
	s.ttsNames = []string{"google", "elevenlabs"}

	req := httptest.NewRequest(http.MethodGet, "/v1/tts-cost-comparison?text=hello", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := body["quotes"]; !ok {
		t.Errorf("expected a quotes field, got %+v", body)
	}
}
