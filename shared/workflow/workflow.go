package workflow

import "strings"

const (
	VehicleStateIdle       = "idle"
	VehicleStateEnRoute    = "enroute"
	VehicleStateDelivering = "delivering"
	VehicleStateReturning  = "returning"
)

const (
	VehicleEventDispatched = "vehicle_dispatched"
	VehicleEventArrived    = "vehicle_arrived"
	VehicleEventUnloaded   = "vehicle_unloaded"
	VehicleEventReturning  = "vehicle_returning"
	VehicleEventDocked     = "vehicle_docked"
)

var vehicleTransitions = map[string]map[string]string{
	VehicleStateIdle: {
		VehicleStateEnRoute: VehicleEventDispatched,
	},
	VehicleStateEnRoute: {
		VehicleStateDelivering: VehicleEventArrived,
	},
	VehicleStateDelivering: {
		VehicleStateEnRoute:   VehicleEventUnloaded,
		VehicleStateReturning: VehicleEventReturning,
	},
	VehicleStateReturning: {
		VehicleStateIdle: VehicleEventDocked,
	},
}

func NormalizeVehicleState(state string) string {
	return strings.ToLower(strings.TrimSpace(state))
}

func CanTransition(fromState string, toState string) bool {
	fromState = NormalizeVehicleState(fromState)
	toState = NormalizeVehicleState(toState)
	if fromState == toState {
		return true
	}
	next := vehicleTransitions[fromState]
	if next == nil {
		return false
	}
	_, ok := next[toState]
	return ok
}

func EventTypeForTransition(fromState string, toState string) string {
	fromState = NormalizeVehicleState(fromState)
	toState = NormalizeVehicleState(toState)
	if fromState == toState {
		return ""
	}
	next := vehicleTransitions[fromState]
	if next == nil {
		return ""
	}
	return next[toState]
}

func AllVehicleStates() []string {
	return []string{
		VehicleStateIdle,
		VehicleStateEnRoute,
		VehicleStateDelivering,
		VehicleStateReturning,
	}
}
