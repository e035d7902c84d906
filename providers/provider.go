package providers

import (
	"context"

	"order-tracking-service/models"
)

// ETAProvider estimates travel between two points. Implementations never
// return an error: every failure is reported through ETAResult.Failed.
type ETAProvider interface {
	Estimate(ctx context.Context, origin, destination models.Coordinates, mode models.TravelMode) models.ETAResult
}

// GeocodeResult is either coordinates for an address or a failure reason.
type GeocodeResult struct {
	Failed      bool
	Reason      string
	Coordinates models.Coordinates
	Formatted   string
}

// Geocoder resolves a postal address to coordinates. Like ETAProvider it
// reports failures in the result.
type Geocoder interface {
	Geocode(ctx context.Context, address string) GeocodeResult
}

// Disabled is used when no routing provider is configured.
type Disabled struct{}

func (Disabled) Estimate(context.Context, models.Coordinates, models.Coordinates, models.TravelMode) models.ETAResult {
	return models.FailedETA("routing provider not configured")
}

func (Disabled) Geocode(context.Context, string) GeocodeResult {
	return GeocodeResult{Failed: true, Reason: "geocoding provider not configured"}
}
