package workflow

import "testing"

func TestCanTransition(t *testing.T) {
	if !CanTransition(VehicleStateIdle, VehicleStateEnRoute) {
		t.Fatalf("expected idle -> enroute to be allowed")
	}
	if !CanTransition(VehicleStateDelivering, VehicleStateEnRoute) {
		t.Fatalf("expected delivering -> enroute to be allowed")
	}
	if CanTransition(VehicleStateReturning, VehicleStateDelivering) {
		t.Fatalf("expected returning -> delivering to be blocked")
	}
	if CanTransition(VehicleStateIdle, VehicleStateDelivering) {
		t.Fatalf("expected idle -> delivering to be blocked")
	}
}

func TestEventTypeForTransition(t *testing.T) {
	ev := EventTypeForTransition(VehicleStateReturning, VehicleStateIdle)
	if ev != VehicleEventDocked {
		t.Fatalf("expected docked event for returning -> idle, got %q", ev)
	}
	if ev := EventTypeForTransition(VehicleStateIdle, VehicleStateIdle); ev != "" {
		t.Fatalf("expected empty event for self transition, got %q", ev)
	}
}
