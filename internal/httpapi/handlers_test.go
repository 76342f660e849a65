package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"welfarecheck-platform/internal/auth"
	"welfarecheck-platform/internal/callrecords"
	"welfarecheck-platform/internal/config"
	"welfarecheck-platform/internal/provider"
	"welfarecheck-platform/internal/rbac"
	"welfarecheck-platform/internal/reporting"
	"welfarecheck-platform/internal/scheduling"

	"github.com/gin-gonic/gin"
)

type stubProvider struct{ n int }

func (s *stubProvider) Name() string                          { return "stub" }
func (s *stubProvider) HealthCheck(ctx context.Context) error { return nil }

func (s *stubProvider) CreateCall(ctx context.Context, req provider.CreateCallRequest) (provider.CreateCallResult, error) {
	s.n++
	return provider.CreateCallResult{ProviderCallID: "call_stub", AcceptedAt: time.Now()}, nil
}

func testRouter(t *testing.T) (*gin.Engine, *callrecords.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := callrecords.NewMemoryStore()
	sched := scheduling.NewService(store, &stubProvider{}, nil, nil, config.CallsConfig{MaxConcurrent: 3, ConcurrencyTTL: time.Minute})

	repRepo := reporting.NewMemoryRepo()
	h := Handlers{
		Scheduling: sched,
		Reporting:  reporting.NewService(repRepo),
	}

	r := gin.New()
	identity := func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u1", "ws-1", rbac.RoleCarer)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
	v1 := r.Group("/v1", identity, rbac.RequireWorkspace())
	v1.POST("/calls", h.ScheduleCall)
	v1.GET("/calls", h.ListCalls)
	v1.GET("/reports/calls", h.CallsSummary)
	return r, store
}

func TestScheduleCall_Created(t *testing.T) {
	r, store := testRouter(t)

	body := []byte(`{"recipient_name":"Ada","phone_number":"+447700900123","message":"morning check"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/calls", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("code = %d, body %s", w.Code, w.Body.String())
	}
	var rec callrecords.CallRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("response not a record: %v", err)
	}
	if rec.WorkspaceID != "ws-1" || rec.Status != callrecords.CallStatusScheduled {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, err := store.GetByProviderCallID(context.Background(), rec.ProviderCallID); err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
}

func TestScheduleCall_BadInput(t *testing.T) {
	r, _ := testRouter(t)

	for _, body := range []string{
		`not json`,
		`{"recipient_name":"Ada","phone_number":"nope","message":"m"}`,
		`{"recipient_name":"","phone_number":"+447700900123","message":"m"}`,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/calls", bytes.NewReader([]byte(body)))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: code = %d", body, w.Code)
		}
	}
}

func TestListCalls_ReturnsWorkspaceRecords(t *testing.T) {
	r, store := testRouter(t)
	if _, err := store.Insert(context.Background(), callrecords.CallRecord{
		ID: "rec-1", WorkspaceID: "ws-1", ProviderCallID: "call_1", Status: callrecords.CallStatusCompleted,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Insert(context.Background(), callrecords.CallRecord{
		ID: "rec-2", WorkspaceID: "ws-other", ProviderCallID: "call_2", Status: callrecords.CallStatusCompleted,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/calls", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Calls []callrecords.CallRecord `json:"calls"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Calls) != 1 || resp.Calls[0].ID != "rec-1" {
		t.Fatalf("unexpected calls: %+v", resp.Calls)
	}
}

func TestListCalls_RejectsBadLimit(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/calls?limit=abc", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestCallsSummary_DefaultsWindow(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/reports/calls", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body %s", w.Code, w.Body.String())
	}
	var out reporting.CallsSummary
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.WorkspaceID != "ws-1" {
		t.Fatalf("unexpected summary: %+v", out)
	}
}

func TestCallsSummary_BadRange(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/reports/calls?from=yesterday", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}
