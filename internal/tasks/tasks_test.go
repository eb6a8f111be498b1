package tasks

import (
	"encoding/json"
	"testing"
)

func TestGeneratePayloadNameOptional(t *testing.T) {
	p := GeneratePayload{NumCustomers: 40, Seed: 7}
	if err := p.Validate(); err != nil {
		t.Fatalf("payload without name rejected: %v", err)
	}
}

func TestGeneratePayloadRequiresCustomers(t *testing.T) {
	for _, n := range []int{0, -5} {
		p := GeneratePayload{Name: "x", NumCustomers: n}
		if err := p.Validate(); err == nil {
			t.Fatalf("payload with %d customers accepted", n)
		}
	}
}

func TestNewGenerateTaskRoundTrip(t *testing.T) {
	task, err := NewGenerateTask(GeneratePayload{Name: "rio", NumCustomers: 80, Seed: 42}, "default")
	if err != nil {
		t.Fatalf("NewGenerateTask: %v", err)
	}
	if task.Type() != TypeNetworkGenerate {
		t.Fatalf("task type = %q", task.Type())
	}
	var p GeneratePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Name != "rio" || p.NumCustomers != 80 || p.Seed != 42 {
		t.Fatalf("payload round trip = %+v", p)
	}
}
