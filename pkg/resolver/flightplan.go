package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-querystring/query"

	"github.com/HaDeSMonsta/get-flight-data/pkg/fetch"
)

// DefaultFlightPlanEndpoint is the SimBrief latest-OFP fetcher.
const DefaultFlightPlanEndpoint = "https://www.simbrief.com/api/xml.fetcher.php"

// FlightPlanResolver reads the departure/arrival pair of the latest flight plan.
type FlightPlanResolver struct {
	fetcher  fetch.Fetcher
	endpoint string
}

// NewFlightPlanResolver creates a resolver using endpoint (DefaultFlightPlanEndpoint if empty).
func NewFlightPlanResolver(f fetch.Fetcher, endpoint string) *FlightPlanResolver {
	if endpoint == "" {
		endpoint = DefaultFlightPlanEndpoint
	}
	return &FlightPlanResolver{fetcher: f, endpoint: endpoint}
}

type flightPlanQuery struct {
	Username string `url:"username"`
	JSON     int    `url:"json"`
}

type flightPlanResponse struct {
	Fetch *struct {
		Status string `json:"status"`
	} `json:"fetch"`
	Origin struct {
		IcaoCode string `json:"icao_code"`
	} `json:"origin"`
	Destination struct {
		IcaoCode string `json:"icao_code"`
	} `json:"destination"`
}

// URI builds the flight-plan query for accountName.
func (r *FlightPlanResolver) URI(accountName string) (string, error) {
	v, err := query.Values(flightPlanQuery{Username: accountName, JSON: 1})
	if err != nil {
		return "", fmt.Errorf("encode flight plan query: %w", err)
	}
	return r.endpoint + "?" + v.Encode(), nil
}

// Resolve fetches the latest flight plan of accountName.
func (r *FlightPlanResolver) Resolve(ctx context.Context, accountName string) (AirportPair, error) {
	accountName = strings.TrimSpace(accountName)
	if accountName == "" {
		return AirportPair{}, ErrNoAccountName
	}

	uri, err := r.URI(accountName)
	if err != nil {
		return AirportPair{}, err
	}

	slog.Info("Calling SimBrief API")
	body, err := r.fetcher.Get(ctx, uri)
	if err != nil {
		return AirportPair{}, fmt.Errorf("fetch flight plan: %w", err)
	}
	slog.Info("Got response from SimBrief")

	return ParseFlightPlan(body)
}

// ParseFlightPlan extracts the airport pair from a flight-plan JSON document.
func ParseFlightPlan(body string) (AirportPair, error) {
	var resp flightPlanResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return AirportPair{}, fmt.Errorf("%w: flight plan is not valid JSON: %v", ErrUpstreamFormat, err)
	}
	if resp.Fetch != nil && resp.Fetch.Status != "" && !strings.EqualFold(resp.Fetch.Status, "success") {
		return AirportPair{}, fmt.Errorf("%w: flight plan fetch status %q", ErrUpstreamFormat, resp.Fetch.Status)
	}

	pair := AirportPair{
		Departure: cleanCode(resp.Origin.IcaoCode),
		Arrival:   cleanCode(resp.Destination.IcaoCode),
	}
	if len(pair.Departure) < 4 {
		return AirportPair{}, fmt.Errorf("%w: origin.icao_code missing or malformed", ErrUpstreamFormat)
	}
	if len(pair.Arrival) < 4 {
		return AirportPair{}, fmt.Errorf("%w: destination.icao_code missing or malformed", ErrUpstreamFormat)
	}
	return pair, nil
}
