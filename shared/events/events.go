package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicDeliveryEvents   = "delivery.events"
	TopicBottleneckAlerts = "network.bottlenecks"
	TopicNetworkLifecycle = "network.lifecycle"
)

const (
	EventNetworkCreated  = "network_created"
	EventNetworkDeleted  = "network_deleted"
	EventMovementStarted = "movement_started"
	EventMovementStopped = "movement_stopped"
	EventDeliveryDone    = "delivery_completed"
	EventDeliveryMissed  = "delivery_missed"
	EventBottleneckFound = "bottleneck_detected"
)

func NewEnvelope(aggregateType string, aggregateID uuid.UUID, eventType string, payload json.RawMessage) Envelope {
	return Envelope{
		EventID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	}
}
