package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	apperrors "order-tracking-service/common/errors"
	"order-tracking-service/metrics"
	"order-tracking-service/models"

	"go.uber.org/zap"
)

const googleMapsBaseURL = "https://maps.googleapis.com/maps/api"

// GoogleMapsProvider implements ETAProvider and Geocoder with the Google Maps
// Distance Matrix and Geocoding APIs.
type GoogleMapsProvider struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGoogleMapsProvider creates a provider. Every lookup is bounded by timeout.
func NewGoogleMapsProvider(apiKey string, timeout time.Duration, logger *zap.Logger) *GoogleMapsProvider {
	if apiKey == "" {
		logger.Warn("Google Maps API key not found, ETA calculations will be disabled")
	}
	return &GoogleMapsProvider{
		apiKey:     apiKey,
		baseURL:    googleMapsBaseURL,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// WithBaseURL points the provider at another host.
func (g *GoogleMapsProvider) WithBaseURL(u string) *GoogleMapsProvider {
	g.baseURL = u
	return g
}

// ---- Google API response structs ----

type textValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type distanceMatrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status            string     `json:"status"`
			Duration          textValue  `json:"duration"`
			DurationInTraffic *textValue `json:"duration_in_traffic"`
			Distance          textValue  `json:"distance"`
		} `json:"elements"`
	} `json:"rows"`
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location models.Coordinates `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// ---- ETAProvider implementation ----

// Estimate calls the Distance Matrix API. Any failure, including a timeout,
// yields a failed result.
func (g *GoogleMapsProvider) Estimate(ctx context.Context, origin, destination models.Coordinates, mode models.TravelMode) models.ETAResult {
	if mode == "" {
		mode = models.ModeDriving
	}
	result := g.estimate(ctx, origin, destination, mode)
	if result.Failed {
		metrics.ETALookupsTotal.WithLabelValues("failed").Inc()
		g.logger.Warn("ETA lookup failed", zap.String("reason", result.Reason), zap.String("mode", string(mode)))
	} else {
		metrics.ETALookupsTotal.WithLabelValues("ok").Inc()
	}
	return result
}

func (g *GoogleMapsProvider) estimate(ctx context.Context, origin, destination models.Coordinates, mode models.TravelMode) models.ETAResult {
	if g.apiKey == "" {
		return models.FailedETA("Google Maps API key not configured")
	}

	params := url.Values{}
	params.Set("origins", latLng(origin))
	params.Set("destinations", latLng(destination))
	params.Set("mode", string(mode))
	params.Set("units", "metric")
	if mode == models.ModeDriving {
		params.Set("departure_time", "now")
		params.Set("traffic_model", "best_guess")
	}

	var resp distanceMatrixResponse
	if err := g.doRequest(ctx, "/distancematrix/json", params, &resp); err != nil {
		return models.FailedETA("%s", err.Error())
	}
	if resp.Status != "OK" {
		return models.FailedETA("API request failed: %s", statusDetail(resp.Status, resp.ErrorMessage))
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return models.FailedETA("Route calculation failed: empty matrix")
	}

	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return models.FailedETA("Route calculation failed: %s", el.Status)
	}

	duration := el.Duration
	if el.DurationInTraffic != nil && el.DurationInTraffic.Value > 0 {
		duration = *el.DurationInTraffic
	}
	return models.NewETA(duration.Value, duration.Text, el.Distance.Value, el.Distance.Text, mode)
}

// ---- Geocoder implementation ----

// Geocode resolves an address to coordinates with the Geocoding API.
func (g *GoogleMapsProvider) Geocode(ctx context.Context, address string) GeocodeResult {
	if g.apiKey == "" {
		return GeocodeResult{Failed: true, Reason: "Google Maps API key not configured"}
	}

	params := url.Values{}
	params.Set("address", address)

	var resp geocodeResponse
	if err := g.doRequest(ctx, "/geocode/json", params, &resp); err != nil {
		return GeocodeResult{Failed: true, Reason: err.Error()}
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return GeocodeResult{Failed: true, Reason: "No coordinates found for address: " + statusDetail(resp.Status, resp.ErrorMessage)}
	}

	r := resp.Results[0]
	return GeocodeResult{Coordinates: r.Geometry.Location, Formatted: r.FormattedAddress}
}

// ---- HTTP helper ----

func (g *GoogleMapsProvider) doRequest(ctx context.Context, path string, params url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return providerError("create request: " + err.Error())
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return providerError(fmt.Sprintf("request timed out after %s", g.timeout))
		}
		return providerError("request failed: " + err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return providerError("read response: " + err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return providerError(fmt.Sprintf("upstream status %d", resp.StatusCode))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return providerError("decode response: " + err.Error())
	}
	return nil
}

func providerError(reason string) error {
	return &apperrors.ProviderError{Provider: "google_maps", Reason: reason}
}

func latLng(c models.Coordinates) string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lng)
}

func statusDetail(status, message string) string {
	if message == "" {
		return status
	}
	return status + " (" + message + ")"
}
