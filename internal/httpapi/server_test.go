package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type mockTransport struct{ connected bool }

func (m *mockTransport) Connected() bool { return m.connected }

type mockView struct{ peers, pfxs int }

func (m *mockView) PeerCount() int { return m.peers }
func (m *mockView) PfxCount() int  { return m.pfxs }

func newTestServer(connected bool, peers, pfxs int) *Server {
	return NewServer(":0", &mockTransport{connected: connected}, &mockView{peers: peers, pfxs: pfxs}, zap.NewNop())
}

func TestHealthz_AlwaysOK(t *testing.T) {
	s := newTestServer(false, 0, 0)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	s.handleHealthz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestReadyz_NotReady_TransportDisconnected(t *testing.T) {
	s := newTestServer(false, 10, 100)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	checks := body["checks"].(map[string]any)
	if checks["transport"] != "disconnected" {
		t.Errorf("expected transport 'disconnected', got %v", checks["transport"])
	}
	if checks["view"] != "ok" {
		t.Errorf("expected view 'ok', got %v", checks["view"])
	}
}

func TestReadyz_NotReady_EmptyView(t *testing.T) {
	s := newTestServer(true, 0, 0)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	checks := body["checks"].(map[string]any)
	if checks["view"] != "empty" {
		t.Errorf("expected view 'empty', got %v", checks["view"])
	}
}

func TestReadyz_AllHealthy(t *testing.T) {
	s := newTestServer(true, 10, 100)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ready" {
		t.Errorf("expected status 'ready', got %v", body["status"])
	}
}
