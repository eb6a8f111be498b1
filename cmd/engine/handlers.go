package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"delivery-network-engine/internal/broadcast"
	"delivery-network-engine/internal/flow"
	"delivery-network-engine/internal/generator"
	"delivery-network-engine/internal/movement"
	"delivery-network-engine/internal/network"
	"delivery-network-engine/internal/registry"
	"delivery-network-engine/internal/repos"
	"delivery-network-engine/internal/tasks"
	"delivery-network-engine/shared/cachex"
	"delivery-network-engine/shared/config"
	"delivery-network-engine/shared/events"
	"delivery-network-engine/shared/httpx"
	"delivery-network-engine/shared/influxx"
	"delivery-network-engine/shared/logx"
	"delivery-network-engine/shared/metricsx"
	"delivery-network-engine/shared/mqx"
)

const (
	maxBodyBytes         = 1 << 20
	importBodyBytes      = 8 << 20
	bottleneckChannel    = "bottleneck.alerts"
	snapshotCacheTTL     = time.Minute
	restoreBatchSize     = 500
	aggregateTypeNetwork = "network"
)

type app struct {
	cfg         config.Config
	logger      logx.Logger
	registry    *registry.Registry
	repo        *repos.NetworksRepo
	producer    *mqx.Producer
	cache       *cachex.Client
	influx      *influxx.Client
	asynqClient *asynq.Client
}

type createNetworkRequest struct {
	Name         string `json:"name"`
	NumCustomers int    `json:"num_customers"`
	Seed         *int64 `json:"seed,omitempty"`
	Async        bool   `json:"async,omitempty"`
}

type networkSummary struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	CreatedAt       time.Time      `json:"created_at"`
	NodeCounts      map[string]int `json:"node_counts"`
	EdgeCount       int            `json:"edge_count"`
	ZoneCount       int            `json:"zone_count"`
	VehicleCount    int            `json:"vehicle_count"`
	TotalDemand     int            `json:"total_demand"`
	TotalCapacity   int            `json:"total_capacity"`
	MaxFlow         int            `json:"max_flow"`
	BottleneckEdges []string       `json:"bottleneck_edge_ids"`
	Running         bool           `json:"running"`
	Tick            uint64         `json:"tick"`
}

func (a *app) handleCreateNetwork(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreateRequest(r)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}

	seed := a.cfg.GenSeed
	if req.Seed != nil {
		seed = *req.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	if req.Async {
		if a.asynqClient == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "async generation is not configured", nil)
			return
		}
		task, err := tasks.NewGenerateTask(tasks.GeneratePayload{
			Name:         req.Name,
			NumCustomers: req.NumCustomers,
			Seed:         seed,
			RequestID:    httpx.RequestIDFromContext(r.Context()),
		}, a.cfg.AsynqQueue)
		if err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to build task", nil)
			return
		}
		info, err := a.asynqClient.EnqueueContext(r.Context(), task)
		if err != nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "failed to enqueue generation", nil)
			return
		}
		httpx.WriteJSON(w, http.StatusAccepted, map[string]any{
			"task_id": info.ID,
			"queue":   info.Queue,
			"state":   "queued",
		})
		return
	}

	gen := generator.New(generator.DefaultRegion(), rand.New(rand.NewSource(seed)))
	net, err := gen.Generate(generator.Params{
		NumCustomers: req.NumCustomers,
		Name:         req.Name,
		HubCount:     a.cfg.GenHubCount,
		FanoutLimit:  a.cfg.GenFanoutLimit,
		SafetyMargin: a.cfg.GenSafetyMargin,
		RepairMax:    a.cfg.GenRepairMax,
	})
	if err != nil {
		var genErr *generator.GenerationError
		if errors.As(err, &genErr) {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", genErr.Error(), nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "generation failed", nil)
		return
	}

	if a.repo != nil {
		if err := a.repo.Save(r.Context(), net); err != nil {
			a.logger.Error(r.Context(), "network_save_failed", "failed to persist network",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("network_id", net.ID.String()),
				slog.String("error", err.Error()),
			)
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to persist network", nil)
			return
		}
	}

	entry := a.buildEntry(net)
	if err := a.registry.Put(entry); err != nil {
		a.writeRegistryError(w, r, err)
		return
	}

	a.emitLifecycle(net.ID, events.EventNetworkCreated, map[string]any{
		"name":          net.Name,
		"num_customers": req.NumCustomers,
		"seed":          seed,
	})
	summary := a.summarize(entry)
	a.emitBottlenecks(r.Context(), net.ID, summary.BottleneckEdges)

	a.logger.Info(r.Context(), "network_created", "network generated",
		slog.String("network_id", net.ID.String()),
		slog.String("name", net.Name),
		slog.Int("customers", req.NumCustomers),
		slog.Int64("seed", seed),
		slog.Int("max_flow", summary.MaxFlow),
	)
	httpx.WriteJSON(w, http.StatusCreated, summary)
}

// handleImportNetwork registers a network from its exported document
// instead of generating one. The document replays through the model's
// validation, so a malformed graph is rejected before anything is
// persisted.
func (a *app) handleImportNetwork(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "request body required", nil)
		return
	}
	defer r.Body.Close()
	var doc network.Document
	if err := json.NewDecoder(io.LimitReader(r.Body, importBodyBytes)).Decode(&doc); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid json body", nil)
		return
	}

	net, err := network.FromDocument(doc)
	if err != nil {
		var vErr *network.ValidationError
		if errors.As(err, &vErr) {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", vErr.Error(),
				map[string]any{"invariant": vErr.Invariant})
			return
		}
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if unreachable := net.Validate(); len(unreachable) > 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "network has unreachable customers",
			map[string]any{"unreachable": unreachable})
		return
	}

	if a.repo != nil {
		if err := a.repo.Save(r.Context(), net); err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to persist network", nil)
			return
		}
	}
	entry := a.buildEntry(net)
	if err := a.registry.Put(entry); err != nil {
		a.writeRegistryError(w, r, err)
		return
	}
	a.emitLifecycle(net.ID, events.EventNetworkCreated, map[string]any{
		"name":     net.Name,
		"imported": true,
	})
	a.logger.Info(r.Context(), "network_imported", "network imported",
		slog.String("network_id", net.ID.String()),
		slog.String("name", net.Name),
	)
	httpx.WriteJSON(w, http.StatusCreated, a.summarize(entry))
}

// handleExportNetwork returns the full document for a registered
// network, suitable for re-import. The engine serializes the read so a
// running simulation cannot mutate vehicles mid-export.
func (a *app) handleExportNetwork(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if entry.Engine != nil {
		httpx.WriteJSON(w, http.StatusOK, entry.Engine.ExportNetwork())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entry.Network.Export())
}

func (a *app) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	entries := a.registry.List()
	list := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{
			"id":         e.Network.ID.String(),
			"name":       e.Network.Name,
			"created_at": e.Network.CreatedAt,
		}
		if e.Engine != nil {
			item["running"] = e.Engine.Running()
			item["tick"] = e.Engine.Tick()
		}
		list = append(list, item)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"networks": list})
}

func (a *app) handleNetworkSummary(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.lookup(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a.summarize(entry))
}

func (a *app) handleDeleteNetwork(w http.ResponseWriter, r *http.Request) {
	id, ok := parseNetworkID(w, r)
	if !ok {
		return
	}
	entry, err := a.registry.Delete(id)
	if err != nil {
		a.writeRegistryError(w, r, err)
		return
	}
	if a.repo != nil {
		if err := a.repo.Delete(r.Context(), id); err != nil && !errors.Is(err, repos.ErrNotFound) {
			a.logger.Error(r.Context(), "network_delete_failed", "failed to delete persisted network",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("network_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if a.cache != nil {
		_ = a.cache.Delete(r.Context(), snapshotCacheKey(id))
	}
	a.emitLifecycle(id, events.EventNetworkDeleted, map[string]any{
		"name": entry.Network.Name,
	})
	a.logger.Info(r.Context(), "network_deleted", "network removed",
		slog.String("network_id", id.String()),
	)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"deleted": id.String()})
}

func (a *app) handleMovementStart(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.lookup(w, r)
	if !ok {
		return
	}
	entry.Engine.Start(context.Background())
	a.emitLifecycle(entry.Network.ID, events.EventMovementStarted, nil)
	a.logger.Info(r.Context(), "movement_started", "movement started",
		slog.String("network_id", entry.Network.ID.String()),
	)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"running": true, "tick": entry.Engine.Tick()})
}

func (a *app) handleMovementStop(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.lookup(w, r)
	if !ok {
		return
	}
	entry.Engine.Stop()
	a.emitLifecycle(entry.Network.ID, events.EventMovementStopped, nil)
	a.logger.Info(r.Context(), "movement_stopped", "movement stopped",
		slog.String("network_id", entry.Network.ID.String()),
	)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"running": false, "tick": entry.Engine.Tick()})
}

func (a *app) handleMovementReset(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if entry.Engine.Running() {
		httpx.WriteError(w, r, http.StatusConflict, "CONFLICT", "stop movement before reset", nil)
		return
	}
	entry.Engine.Reset()
	a.logger.Info(r.Context(), "movement_reset", "simulation reset",
		slog.String("network_id", entry.Network.ID.String()),
	)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"running": false, "tick": uint64(0)})
}

// buildEntry wires a freshly loaded or generated network with its
// simulation engine, snapshot hub and telemetry hooks.
func (a *app) buildEntry(net *network.Network) *registry.Entry {
	hub := broadcast.NewHub(a.cfg.SimQueueSize)
	eng := movement.NewEngine(net, movement.Config{
		TickInterval:  time.Duration(a.cfg.SimTickMS) * time.Millisecond,
		DwellTicks:    a.cfg.SimDwellTicks,
		SnapshotEvery: a.cfg.SimSnapshotEvery,
		TrafficMin:    a.cfg.TrafficFactorMin,
		TrafficMax:    a.cfg.TrafficFactorMax,
	}, rand.New(rand.NewSource(int64(net.ID.ID()))), hub)

	id := net.ID
	label := id.String()
	eng.OnDelivery = func(vehicleID, customerID string, units int) {
		metricsx.AddDeliveries(label, units)
		a.publishEvent(id, events.TopicDeliveryEvents, events.EventDeliveryDone, map[string]any{
			"vehicle_id":  vehicleID,
			"customer_id": customerID,
			"units":       units,
		})
	}
	eng.OnMiss = func(vehicleID, targetID string) {
		metricsx.IncDeliveryMiss(label)
		a.publishEvent(id, events.TopicDeliveryEvents, events.EventDeliveryMissed, map[string]any{
			"vehicle_id": vehicleID,
			"target_id":  targetID,
		})
	}
	eng.OnTransition = func(vehicleID, eventType string) {
		a.publishEvent(id, events.TopicDeliveryEvents, eventType, map[string]any{
			"vehicle_id": vehicleID,
		})
	}
	eng.OnSnapshot = func(snap broadcast.Snapshot, dropped int) {
		metricsx.IncTick(label)
		for i := 0; i < dropped; i++ {
			metricsx.IncSnapshotDropped(label)
		}
		metricsx.SetActiveSubscribers(label, hub.SubscriberCount())
	}

	if a.cache != nil || a.influx != nil {
		go a.runTelemetry(id, hub.Subscribe())
	}
	return &registry.Entry{Network: net, Engine: eng, Hub: hub}
}

// runTelemetry drains one subscriber queue into redis and influx. It
// exits when the hub closes the channel.
func (a *app) runTelemetry(id uuid.UUID, sub *broadcast.Subscriber) {
	ctx := context.Background()
	for snap := range sub.C() {
		if a.cache != nil {
			_ = a.cache.SetJSON(ctx, snapshotCacheKey(id), snap, snapshotCacheTTL)
		}
		if a.influx != nil {
			err := a.influx.WritePoint(ctx, "network_tick", map[string]string{
				"network_id": id.String(),
			}, map[string]any{
				"tick":            int64(snap.Tick),
				"delivered":       snap.Stats.Delivered,
				"pending":         snap.Stats.Pending,
				"misses":          snap.Stats.Misses,
				"active_vehicles": snap.Stats.ActiveVehicles,
				"active_routes":   len(snap.ActiveRoutes),
			}, snap.Timestamp)
			if err != nil {
				metricsx.IncInfluxWriteFailure()
			}
		}
	}
}

func (a *app) restoreNetworks(ctx context.Context) {
	rows, err := a.repo.List(ctx, restoreBatchSize, 0)
	if err != nil {
		a.logger.Error(ctx, "network_restore_failed", "failed to list persisted networks",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		return
	}
	restored := 0
	for _, row := range rows {
		net, err := a.repo.Load(ctx, row.NetworkID)
		if err != nil {
			a.logger.Warn(ctx, "network_restore_skipped", "failed to load persisted network",
				slog.String("network_id", row.NetworkID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := a.registry.Put(a.buildEntry(net)); err != nil {
			a.logger.Warn(ctx, "network_restore_skipped", "failed to register network",
				slog.String("network_id", row.NetworkID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		restored++
	}
	if restored > 0 {
		a.logger.Info(ctx, "networks_restored", "persisted networks restored",
			slog.Int("count", restored),
		)
	}
}

func (a *app) summarize(entry *registry.Entry) networkSummary {
	net := entry.Network
	stats := net.Stats()

	start := time.Now()
	result := flow.MaxFlow(net)
	bottlenecks := flow.Bottlenecks(net)
	metricsx.ObserveFlowCompute(time.Since(start))

	s := networkSummary{
		ID:        net.ID.String(),
		Name:      net.Name,
		CreatedAt: net.CreatedAt,
		NodeCounts: map[string]int{
			network.KindDepot:    stats.Depots,
			network.KindHub:      stats.Hubs,
			network.KindCustomer: stats.Customers,
		},
		EdgeCount:       stats.Edges,
		ZoneCount:       stats.Zones,
		VehicleCount:    stats.Vehicles,
		TotalDemand:     stats.TotalDemand,
		TotalCapacity:   stats.TotalCapacity,
		MaxFlow:         result.Value,
		BottleneckEdges: bottlenecks,
	}
	if entry.Engine != nil {
		s.Running = entry.Engine.Running()
		s.Tick = entry.Engine.Tick()
	}
	return s
}

func (a *app) emitBottlenecks(ctx context.Context, id uuid.UUID, edgeIDs []string) {
	if len(edgeIDs) == 0 {
		return
	}
	a.publishEvent(id, events.TopicBottleneckAlerts, events.EventBottleneckFound, map[string]any{
		"edge_ids": edgeIDs,
	})
	if a.cache != nil {
		_ = a.cache.PublishJSON(ctx, bottleneckChannel, map[string]any{
			"network_id": id.String(),
			"edge_ids":   edgeIDs,
		})
	}
}

func (a *app) emitLifecycle(id uuid.UUID, eventType string, payload map[string]any) {
	a.publishEvent(id, events.TopicNetworkLifecycle, eventType, payload)
}

func (a *app) publishEvent(id uuid.UUID, topic string, eventType string, payload map[string]any) {
	if a.producer == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	envelope := events.NewEnvelope(aggregateTypeNetwork, id, eventType, body)
	data, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.producer.Publish(ctx, topic, []byte(id.String()), data, map[string]string{
		"event_type": eventType,
	}); err != nil {
		a.logger.Warn(ctx, "event_publish_failed", "failed to publish event",
			slog.String("topic", topic),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func (a *app) lookup(w http.ResponseWriter, r *http.Request) (*registry.Entry, bool) {
	id, ok := parseNetworkID(w, r)
	if !ok {
		return nil, false
	}
	entry, ok := a.registry.Get(id)
	if !ok {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "network not found", nil)
		return nil, false
	}
	return entry, true
}

func (a *app) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *registry.ConflictError
	switch {
	case errors.As(err, &conflict):
		httpx.WriteError(w, r, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, registry.ErrNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "network not found", nil)
	default:
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
	}
}

func parseNetworkID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "network id must be a UUID", nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func decodeCreateRequest(r *http.Request) (createNetworkRequest, error) {
	if r.Body == nil {
		return createNetworkRequest{}, errors.New("request body required")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	var req createNetworkRequest
	if err := dec.Decode(&req); err != nil {
		return createNetworkRequest{}, errors.New("invalid json body")
	}
	// Name is optional; the generator supplies a default.
	req.Name = strings.TrimSpace(req.Name)
	if req.NumCustomers <= 0 {
		return createNetworkRequest{}, errors.New("num_customers must be positive")
	}
	return req, nil
}

func snapshotCacheKey(id uuid.UUID) string {
	return "network:" + id.String() + ":snapshot:latest"
}
