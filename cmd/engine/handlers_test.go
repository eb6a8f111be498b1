package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"delivery-network-engine/internal/network"
	"delivery-network-engine/internal/registry"
	"delivery-network-engine/shared/events"
	"delivery-network-engine/shared/logx"
)

func testApp(t *testing.T) *app {
	t.Helper()
	return &app{
		logger:   logx.New("engine", "test", "", "error"),
		registry: registry.New(time.Second),
	}
}

func registerNetwork(t *testing.T, a *app, name string) *network.Network {
	t.Helper()
	n := network.New(name)
	if err := a.registry.Put(&registry.Entry{Network: n}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return n
}

func createRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/v1/networks", strings.NewReader(body))
}

func TestDecodeCreateRequestNameOptional(t *testing.T) {
	req, err := decodeCreateRequest(createRequest(`{"num_customers": 25}`))
	if err != nil {
		t.Fatalf("decode without name: %v", err)
	}
	if req.Name != "" {
		t.Fatalf("name = %q, want empty", req.Name)
	}
	if req.NumCustomers != 25 {
		t.Fatalf("num_customers = %d, want 25", req.NumCustomers)
	}
}

func TestDecodeCreateRequestRequiresCustomers(t *testing.T) {
	if _, err := decodeCreateRequest(createRequest(`{"name": "x"}`)); err == nil {
		t.Fatalf("expected error for missing num_customers")
	}
	if _, err := decodeCreateRequest(createRequest(`{"num_customers": 0}`)); err == nil {
		t.Fatalf("expected error for zero num_customers")
	}
}

func TestLatestSnapshotWithoutCacheUnavailable(t *testing.T) {
	a := testApp(t)
	n := registerNetwork(t, a, "snap")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/networks/"+n.ID.String()+"/snapshot", nil)
	r.SetPathValue("id", n.ID.String())
	w := httptest.NewRecorder()
	a.handleLatestSnapshot(w, r)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestTelemetryWithoutInfluxUnavailable(t *testing.T) {
	a := testApp(t)
	n := registerNetwork(t, a, "telemetry")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/networks/"+n.ID.String()+"/telemetry", nil)
	r.SetPathValue("id", n.ID.String())
	w := httptest.NewRecorder()
	a.handleTelemetry(w, r)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestApplyLifecycleEventSkipsRegistered(t *testing.T) {
	a := testApp(t)
	n := registerNetwork(t, a, "known")

	env := events.NewEnvelope("network", n.ID, events.EventNetworkCreated, json.RawMessage(`{}`))
	value, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := a.applyLifecycleEvent(context.Background(), value); err != nil {
		t.Fatalf("apply for registered network: %v", err)
	}
	if a.registry.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", a.registry.Len())
	}
}

func TestApplyLifecycleEventIgnoresOtherTypes(t *testing.T) {
	a := testApp(t)
	n := network.New("elsewhere")

	env := events.NewEnvelope("network", n.ID, events.EventMovementStarted, json.RawMessage(`{}`))
	value, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := a.applyLifecycleEvent(context.Background(), value); err != nil {
		t.Fatalf("apply for non-created event: %v", err)
	}
	if a.registry.Len() != 0 {
		t.Fatalf("registry len = %d, want 0", a.registry.Len())
	}
}

func TestApplyLifecycleEventRejectsGarbage(t *testing.T) {
	a := testApp(t)
	if err := a.applyLifecycleEvent(context.Background(), []byte("not json")); err == nil {
		t.Fatalf("expected error for malformed envelope")
	}
}
