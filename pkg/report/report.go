// Package report builds the flight data report: one fixed-format text block
// per airport plus the time the data was fetched.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/HaDeSMonsta/get-flight-data/pkg/resolver"
)

// SeparatorWidth is the dash count between the departure and arrival blocks.
const SeparatorWidth = 100

// AirportData holds the resolved inputs of one block.
type AirportData struct {
	Code    string                 `json:"code"`
	Atis    resolver.AtisReport    `json:"atis"`
	Weather resolver.WeatherReport `json:"weather"`
}

// FlightDataReport is the unit published to the display layer. It is never
// mutated after construction; each refresh produces a new one.
type FlightDataReport struct {
	DepartureBlock string               `json:"departureBlock"`
	ArrivalBlock   string               `json:"arrivalBlock"`
	FetchedAt      time.Time            `json:"fetchedAt"`
	Airports       resolver.AirportPair `json:"airports"`
	Departure      AirportData          `json:"departure"`
	Arrival        AirportData          `json:"arrival"`
}

// NewFlightDataReport formats both blocks from the resolved data.
func NewFlightDataReport(dep, arr AirportData, fetchedAt time.Time) *FlightDataReport {
	return &FlightDataReport{
		DepartureBlock: FormatBlock(dep.Code, dep.Atis, dep.Weather),
		ArrivalBlock:   FormatBlock(arr.Code, arr.Atis, arr.Weather),
		FetchedAt:      fetchedAt,
		Airports:       resolver.AirportPair{Departure: dep.Code, Arrival: arr.Code},
		Departure:      dep,
		Arrival:        arr,
	}
}

// FormatBlock renders one airport block.
func FormatBlock(code string, atis resolver.AtisReport, weather resolver.WeatherReport) string {
	return fmt.Sprintf("ICAO: %s\n\nVatsim ATIS: %s\nMETAR: %s\nFlight rules: %s",
		code, atis.Text(), weather.Raw, weather.FlightRules)
}

// RequestTimeLine renders the fetch time as shown above the blocks.
func RequestTimeLine(t time.Time) string {
	return "Request time: " + t.Local().Format("15:04")
}

// Text renders the classic console layout: time, departure, separator, arrival.
func (r *FlightDataReport) Text() string {
	return fmt.Sprintf("%s\n\n%s\n\n%s\n\n%s",
		RequestTimeLine(r.FetchedAt),
		r.DepartureBlock,
		strings.Repeat("-", SeparatorWidth),
		r.ArrivalBlock)
}

// AtisSource resolves the ATIS of an airport for a role.
type AtisSource interface {
	Resolve(ctx context.Context, airportCode string, isDeparture bool) (resolver.AtisReport, error)
}

// Generator runs the data pipeline for an airport pair.
type Generator struct {
	weather resolver.WeatherResolver
	atis    AtisSource
	now     func() time.Time
}

// NewGenerator creates a new report generator
func NewGenerator(weather resolver.WeatherResolver, atis AtisSource) *Generator {
	return &Generator{weather: weather, atis: atis, now: time.Now}
}

// Generate fetches METAR and ATIS for both airports and formats the report.
// Requests are issued sequentially: departure METAR, arrival METAR, then the
// two ATIS lookups.
func (g *Generator) Generate(ctx context.Context, pair resolver.AirportPair, apiKey string) (*FlightDataReport, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if pair.Departure == "" || pair.Arrival == "" {
		return nil, fmt.Errorf("generate report: incomplete airport pair %q/%q", pair.Departure, pair.Arrival)
	}

	provider := g.weather.Name()

	slog.Info(fmt.Sprintf("Calling %s API for departure", provider))
	depWeather, err := g.weather.Resolve(ctx, pair.Departure, apiKey)
	if err != nil {
		return nil, fmt.Errorf("departure metar: %w", err)
	}
	slog.Info("Got departure METAR")

	slog.Info(fmt.Sprintf("Calling %s API for arrival", provider))
	arrWeather, err := g.weather.Resolve(ctx, pair.Arrival, apiKey)
	if err != nil {
		return nil, fmt.Errorf("arrival metar: %w", err)
	}
	slog.Info("Got arrival METAR")

	slog.Info("Calling Vatsim API for departure")
	depAtis, err := g.atis.Resolve(ctx, pair.Departure, true)
	if err != nil {
		return nil, fmt.Errorf("departure atis: %w", err)
	}
	slog.Info("Got departure ATIS")

	slog.Info("Calling Vatsim API for arrival ATIS")
	arrAtis, err := g.atis.Resolve(ctx, pair.Arrival, false)
	if err != nil {
		return nil, fmt.Errorf("arrival atis: %w", err)
	}
	slog.Info("Got arrival ATIS")

	return NewFlightDataReport(
		AirportData{Code: pair.Departure, Atis: depAtis, Weather: depWeather},
		AirportData{Code: pair.Arrival, Atis: arrAtis, Weather: arrWeather},
		g.now(),
	), nil
}
