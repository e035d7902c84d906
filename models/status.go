package models

import "fmt"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusPickedUp  OrderStatus = "picked_up"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// lifecycle is the forward path of an order. A status may move to any later
// status on this path, never backwards.
var lifecycle = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusPickedUp,
	StatusDelivered,
}

// transitions is the explicit transition table derived from lifecycle.
var transitions = buildTransitions()

func buildTransitions() map[OrderStatus]map[OrderStatus]bool {
	table := make(map[OrderStatus]map[OrderStatus]bool, len(lifecycle)+1)
	for i, from := range lifecycle {
		next := make(map[OrderStatus]bool)
		for _, to := range lifecycle[i+1:] {
			next[to] = true
		}
		if !from.IsTerminal() {
			next[StatusCancelled] = true
		}
		table[from] = next
	}
	table[StatusCancelled] = map[OrderStatus]bool{}
	return table
}

// AllStatuses returns every known status in lifecycle order, cancelled last.
func AllStatuses() []OrderStatus {
	out := make([]OrderStatus, 0, len(lifecycle)+1)
	out = append(out, lifecycle...)
	return append(out, StatusCancelled)
}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// IsValid reports whether s is a known status.
func (s OrderStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether next is reachable from s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return transitions[s][next]
}

func (s OrderStatus) String() string { return string(s) }
