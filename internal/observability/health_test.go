package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != "healthy" || status.Service != serviceName {
		t.Errorf("Unexpected health status: %+v", status)
	}
}

func TestReadinessHandler_Ready(t *testing.T) {
	handler := ReadinessHandler(map[string]HealthCheckFunc{
		"realtime": func(ctx context.Context) (bool, error) { return true, nil },
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var status HealthStatus
	json.NewDecoder(rec.Body).Decode(&status)
	if status.Dependencies["realtime"].Status != "healthy" {
		t.Errorf("Expected realtime to be healthy, got %+v", status.Dependencies)
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := ReadinessHandler(map[string]HealthCheckFunc{
		"realtime": func(ctx context.Context) (bool, error) { return false, errors.New("state disconnected") },
		"speaker":  func(ctx context.Context) (bool, error) { return true, nil },
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
	var status HealthStatus
	json.NewDecoder(rec.Body).Decode(&status)
	if status.Status != "not_ready" {
		t.Errorf("Expected not_ready, got %s", status.Status)
	}
	if status.Dependencies["realtime"].Message != "state disconnected" {
		t.Errorf("Expected failure message, got %+v", status.Dependencies["realtime"])
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordDialStart()
	m.RecordSessionOpen()
	m.RecordInbound("audio_delta")
	m.RecordChunk("played")
	m.RecordSessionClose()
}

func TestMetrics_OpenCloseOnce(t *testing.T) {
	m := NewSessionMetrics("session_test")
	m.RecordDialStart()
	m.RecordSessionOpen()
	m.RecordSessionOpen()
	if !m.open {
		t.Fatal("Expected metrics to be open")
	}
	m.RecordSessionClose()
	m.RecordSessionClose()
	if m.open {
		t.Error("Expected metrics to be closed")
	}
}
