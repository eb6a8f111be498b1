// Package tasks defines the asynq task types shared by the engine
// (enqueue side) and the worker (handler side).
package tasks

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const TypeNetworkGenerate = "network.generate"

type GeneratePayload struct {
	Name         string `json:"name"`
	NumCustomers int    `json:"num_customers"`
	Seed         int64  `json:"seed"`
	RequestID    string `json:"request_id,omitempty"`
}

// Validate rejects payloads the worker cannot act on. Name is optional;
// an empty one takes the generator's default.
func (p GeneratePayload) Validate() error {
	if p.NumCustomers <= 0 {
		return errors.New("num_customers must be positive")
	}
	return nil
}

func NewGenerateTask(p GeneratePayload, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNetworkGenerate, payload, asynq.Queue(queue)), nil
}
