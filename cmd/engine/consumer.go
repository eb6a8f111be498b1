package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"delivery-network-engine/shared/events"
	"delivery-network-engine/shared/mqx"
)

const lifecycleConsumerGroup = "engine-lifecycle"

// runLifecycleConsumer tails the network lifecycle topic and registers
// networks created out of process: the generation worker persists a
// network and announces it here, and every engine replica picks it up
// without waiting for a restart. Runs until ctx is cancelled.
func (a *app) runLifecycleConsumer(ctx context.Context) {
	reader, err := mqx.NewConsumer(a.cfg, events.TopicNetworkLifecycle, lifecycleConsumerGroup)
	if err != nil {
		a.logger.Warn(ctx, "lifecycle_consumer_init_failed", "lifecycle consumer init failed",
			slog.String("error", err.Error()),
		)
		return
	}
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn(ctx, "lifecycle_consume_failed", "failed to read lifecycle event",
				slog.String("error", err.Error()),
			)
			time.Sleep(time.Second)
			continue
		}
		if err := a.applyLifecycleEvent(ctx, msg.Value); err != nil {
			a.logger.Warn(ctx, "lifecycle_apply_failed", "failed to apply lifecycle event",
				slog.String("error", err.Error()),
			)
		}
	}
}

// applyLifecycleEvent loads and registers the network a created event
// refers to. The engine's own events come back on the same topic; an
// already-registered id is a no-op.
func (a *app) applyLifecycleEvent(ctx context.Context, value []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return err
	}
	if env.EventType != events.EventNetworkCreated {
		return nil
	}
	if _, ok := a.registry.Get(env.AggregateID); ok {
		return nil
	}
	if a.repo == nil {
		return nil
	}
	net, err := a.repo.Load(ctx, env.AggregateID)
	if err != nil {
		return err
	}
	if err := a.registry.Put(a.buildEntry(net)); err != nil {
		return err
	}
	a.logger.Info(ctx, "network_registered", "network registered from lifecycle event",
		slog.String("network_id", env.AggregateID.String()),
	)
	return nil
}
