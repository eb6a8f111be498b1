package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"delivery-network-engine/internal/broadcast"
	"delivery-network-engine/shared/httpx"
	"delivery-network-engine/shared/metricsx"
)

const (
	streamHeartbeat = 15 * time.Second
	telemetryWindow = 15 * time.Minute
)

// handleStream serves snapshots over SSE. One subscriber queue per
// connection; a slow reader only loses its own oldest snapshots. A
// closed hub (network deleted) terminates the stream with an end event.
func (a *app) handleStream(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming unsupported", nil)
		return
	}

	sub := entry.Hub.Subscribe()
	label := entry.Network.ID.String()
	metricsx.SetActiveSubscribers(label, entry.Hub.SubscriberCount())
	defer func() {
		entry.Hub.Unsubscribe(sub.ID())
		metricsx.SetActiveSubscribers(label, entry.Hub.SubscriberCount())
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-sub.C():
			if !open {
				fmt.Fprint(w, "event: end\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// handleLatestSnapshot serves the most recent cached snapshot so a late
// joiner can render state before its stream delivers the next tick.
func (a *app) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if a.cache == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "snapshot cache is not configured", nil)
		return
	}
	var snap broadcast.Snapshot
	found, err := a.cache.GetJSON(r.Context(), snapshotCacheKey(entry.Network.ID), &snap)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read cached snapshot", nil)
		return
	}
	if !found {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "no snapshot published yet", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, snap)
}

// handleTelemetry returns the recent per-tick points written to influx
// for a network.
func (a *app) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if a.influx == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "telemetry store is not configured", nil)
		return
	}

	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._measurement == "network_tick" and r.network_id == %q)`,
		a.influx.Bucket(), telemetryWindow, entry.Network.ID.String())
	result, err := a.influx.Query(r.Context(), flux)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "telemetry query failed", nil)
		return
	}

	type point struct {
		Time  time.Time `json:"time"`
		Field string    `json:"field"`
		Value any       `json:"value"`
	}
	points := make([]point, 0, 64)
	for result.Next() {
		rec := result.Record()
		points = append(points, point{Time: rec.Time(), Field: rec.Field(), Value: rec.Value()})
	}
	if result.Err() != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "telemetry query failed", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"network_id": entry.Network.ID.String(),
		"window":     telemetryWindow.String(),
		"points":     points,
	})
}
