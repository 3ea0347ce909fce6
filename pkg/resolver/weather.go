package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"

	"github.com/HaDeSMonsta/get-flight-data/pkg/fetch"
)

const (
	// DefaultAVWXEndpoint is the avwx METAR endpoint.
	DefaultAVWXEndpoint = "https://avwx.rest/api/metar"
	// DefaultAviationWeatherEndpoint is the aviationweather.gov METAR endpoint.
	DefaultAviationWeatherEndpoint = "https://aviationweather.gov/api/data/metar"
)

// WeatherResolver fetches the METAR for one airport.
type WeatherResolver interface {
	// Name returns the provider name (e.g., "avwx").
	Name() string
	// Resolve returns the raw METAR and flight rules category for airportCode.
	// apiKey may be ignored by providers that need no authentication.
	Resolve(ctx context.Context, airportCode, apiKey string) (WeatherReport, error)
}

// AVWXResolver reads METARs from avwx.rest.
type AVWXResolver struct {
	fetcher  fetch.Fetcher
	endpoint string
}

// NewAVWXResolver creates an avwx resolver (DefaultAVWXEndpoint if endpoint is empty).
func NewAVWXResolver(f fetch.Fetcher, endpoint string) *AVWXResolver {
	if endpoint == "" {
		endpoint = DefaultAVWXEndpoint
	}
	return &AVWXResolver{fetcher: f, endpoint: strings.TrimRight(endpoint, "/")}
}

// Name implements WeatherResolver.
func (r *AVWXResolver) Name() string { return string(ProviderAVWX) }

type avwxQuery struct {
	Token string `url:"token"`
}

type avwxResponse struct {
	Station     *string `json:"station"`
	Raw         *string `json:"raw"`
	FlightRules *string `json:"flight_rules"`
}

// URI builds <endpoint>/<icao>?token=<key>.
func (r *AVWXResolver) URI(airportCode, apiKey string) (string, error) {
	v, err := query.Values(avwxQuery{Token: apiKey})
	if err != nil {
		return "", fmt.Errorf("encode metar query: %w", err)
	}
	return r.endpoint + "/" + url.PathEscape(airportCode) + "?" + v.Encode(), nil
}

// Resolve implements WeatherResolver.
func (r *AVWXResolver) Resolve(ctx context.Context, airportCode, apiKey string) (WeatherReport, error) {
	code := cleanCode(airportCode)
	if code == "" {
		return WeatherReport{}, fmt.Errorf("metar: empty airport code")
	}
	uri, err := r.URI(code, apiKey)
	if err != nil {
		return WeatherReport{}, err
	}
	body, err := r.fetcher.Get(ctx, uri)
	if err != nil {
		return WeatherReport{}, fmt.Errorf("fetch metar %s: %w", code, err)
	}
	return parseAVWX(body, code)
}

func parseAVWX(body, code string) (WeatherReport, error) {
	var resp avwxResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return WeatherReport{}, fmt.Errorf("%w: metar for %s is not valid JSON: %v", ErrUpstreamFormat, code, err)
	}
	if resp.Raw == nil {
		return WeatherReport{}, fmt.Errorf("%w: metar for %s has no raw field", ErrUpstreamFormat, code)
	}
	if resp.FlightRules == nil {
		return WeatherReport{}, fmt.Errorf("%w: metar for %s has no flight_rules field", ErrUpstreamFormat, code)
	}
	station := code
	if resp.Station != nil && *resp.Station != "" {
		station = *resp.Station
	}
	return WeatherReport{
		Station:     station,
		Raw:         *resp.Raw,
		FlightRules: *resp.FlightRules,
	}, nil
}

// AviationWeatherResolver reads METARs from aviationweather.gov. No key is required.
type AviationWeatherResolver struct {
	fetcher  fetch.Fetcher
	endpoint string
}

// NewAviationWeatherResolver creates an aviationweather.gov resolver.
func NewAviationWeatherResolver(f fetch.Fetcher, endpoint string) *AviationWeatherResolver {
	if endpoint == "" {
		endpoint = DefaultAviationWeatherEndpoint
	}
	return &AviationWeatherResolver{fetcher: f, endpoint: endpoint}
}

// Name implements WeatherResolver.
func (r *AviationWeatherResolver) Name() string { return string(ProviderAviationWeather) }

type aviationWeatherQuery struct {
	IDs    string `url:"ids"`
	Format string `url:"format"`
}

type aviationWeatherMETAR struct {
	IcaoID string `json:"icaoId"`
	RawOb  string `json:"rawOb"`
	FltCat string `json:"fltCat"`
}

// Resolve implements WeatherResolver.
func (r *AviationWeatherResolver) Resolve(ctx context.Context, airportCode, _ string) (WeatherReport, error) {
	code := cleanCode(airportCode)
	if code == "" {
		return WeatherReport{}, fmt.Errorf("metar: empty airport code")
	}
	v, err := query.Values(aviationWeatherQuery{IDs: code, Format: "json"})
	if err != nil {
		return WeatherReport{}, fmt.Errorf("encode metar query: %w", err)
	}
	body, err := r.fetcher.Get(ctx, r.endpoint+"?"+v.Encode())
	if err != nil {
		return WeatherReport{}, fmt.Errorf("fetch metar %s: %w", code, err)
	}

	var result []aviationWeatherMETAR // API returns an array
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return WeatherReport{}, fmt.Errorf("%w: metar for %s is not valid JSON: %v", ErrUpstreamFormat, code, err)
	}
	if len(result) == 0 || result[0].RawOb == "" {
		return WeatherReport{}, fmt.Errorf("%w: no METAR data found for %s", ErrUpstreamFormat, code)
	}

	// first element is the latest observation
	latest := result[0]
	rules := latest.FltCat
	if rules == "" {
		rules = "UNKNOWN"
	}
	station := latest.IcaoID
	if station == "" {
		station = code
	}
	return WeatherReport{Station: station, Raw: latest.RawOb, FlightRules: rules}, nil
}
