package resolver

import (
	"fmt"
	"strings"

	"github.com/HaDeSMonsta/get-flight-data/pkg/fetch"
)

// WeatherProvider represents the METAR data source.
type WeatherProvider string

const (
	// ProviderAVWX represents avwx.rest (API key required)
	ProviderAVWX WeatherProvider = "avwx"
	// ProviderAviationWeather represents aviationweather.gov (no key)
	ProviderAviationWeather WeatherProvider = "aviationweather"
)

// Endpoints holds the base URLs of every upstream service.
type Endpoints struct {
	FlightPlan      string
	AVWX            string
	AviationWeather string
	Atis            string
}

// DefaultEndpoints returns the public service URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		FlightPlan:      DefaultFlightPlanEndpoint,
		AVWX:            DefaultAVWXEndpoint,
		AviationWeather: DefaultAviationWeatherEndpoint,
		Atis:            DefaultAtisEndpoint,
	}
}

// Factory creates resolvers sharing one fetcher and endpoint set.
type Factory struct {
	fetcher   fetch.Fetcher
	endpoints Endpoints
}

// NewFactory creates a new factory instance with the provided fetcher and endpoints.
func NewFactory(f fetch.Fetcher, endpoints Endpoints) *Factory {
	return &Factory{fetcher: f, endpoints: endpoints}
}

// FlightPlanResolver returns a flight-plan resolver.
func (f *Factory) FlightPlanResolver() *FlightPlanResolver {
	return NewFlightPlanResolver(f.fetcher, f.endpoints.FlightPlan)
}

// AtisResolver returns an ATIS resolver.
func (f *Factory) AtisResolver() *AtisResolver {
	return NewAtisResolver(f.fetcher, f.endpoints.Atis)
}

// CreateWeatherResolver creates a METAR resolver based on the provider name.
// The provider parameter is case-insensitive and supports the following values:
//   - "avwx" (or empty) - avwx.rest
//   - "aviationweather" - aviationweather.gov
//
// Returns an error if the provider is not recognized
func (f *Factory) CreateWeatherResolver(provider string) (WeatherResolver, error) {
	normalized := strings.ToLower(strings.TrimSpace(provider))
	if normalized == "" {
		normalized = string(ProviderAVWX)
	}

	switch WeatherProvider(normalized) {
	case ProviderAVWX:
		return NewAVWXResolver(f.fetcher, f.endpoints.AVWX), nil
	case ProviderAviationWeather:
		return NewAviationWeatherResolver(f.fetcher, f.endpoints.AviationWeather), nil
	default:
		return nil, fmt.Errorf("unsupported weather provider: %s (supported: %s)",
			provider, strings.Join(SupportedWeatherProviders(), ", "))
	}
}

// SupportedWeatherProviders returns a list of all supported weather providers
func SupportedWeatherProviders() []string {
	return []string{
		string(ProviderAVWX),
		string(ProviderAviationWeather),
	}
}
