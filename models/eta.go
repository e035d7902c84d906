package models

import (
	"fmt"
	"time"
)

// TravelMode is the routing mode used for an estimate.
type TravelMode string

const (
	ModeDriving   TravelMode = "driving"
	ModeWalking   TravelMode = "walking"
	ModeBicycling TravelMode = "bicycling"
	ModeTransit   TravelMode = "transit"
)

// ETAResult is either a computed estimate or a failure with a reason, never both.
// Build values with NewETA or FailedETA.
type ETAResult struct {
	Failed          bool       `json:"failed"`
	Reason          string     `json:"reason,omitempty"`
	DurationText    string     `json:"duration,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	DistanceText    string     `json:"distance,omitempty"`
	DistanceMeters  int        `json:"distance_meters,omitempty"`
	Mode            TravelMode `json:"mode,omitempty"`
	ComputedAt      *time.Time `json:"computed_at,omitempty"`
}

// NewETA builds a successful estimate.
func NewETA(durationSeconds int, durationText string, distanceMeters int, distanceText string, mode TravelMode) ETAResult {
	now := time.Now().UTC()
	return ETAResult{
		DurationSeconds: durationSeconds,
		DurationText:    durationText,
		DistanceMeters:  distanceMeters,
		DistanceText:    distanceText,
		Mode:            mode,
		ComputedAt:      &now,
	}
}

// FailedETA builds a failed estimate.
func FailedETA(format string, args ...interface{}) ETAResult {
	return ETAResult{Failed: true, Reason: fmt.Sprintf(format, args...)}
}

// Duration is the estimated travel time. Zero for failed results.
func (r ETAResult) Duration() time.Duration {
	if r.Failed {
		return 0
	}
	return time.Duration(r.DurationSeconds) * time.Second
}

// ArrivalFrom is the expected arrival time when leaving at start.
func (r ETAResult) ArrivalFrom(start time.Time) time.Time {
	return start.Add(r.Duration())
}
