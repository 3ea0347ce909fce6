// Package resolver turns raw upstream API responses into the typed values a
// flight data report is built from: the airport pair of the current flight
// plan, a METAR per airport and the VATSIM ATIS per airport.
package resolver

import (
	"errors"
	"strings"
)

var (
	// ErrUpstreamFormat is returned when a response is not the expected JSON shape.
	ErrUpstreamFormat = errors.New("unexpected upstream format")
	// ErrProtocolViolation is returned when no ATIS entry carries the requested role marker.
	ErrProtocolViolation = errors.New("atis protocol violation")
	// ErrNoAccountName is returned when a flight plan is requested without an account name.
	ErrNoAccountName = errors.New("no flight-planning account name configured")
)

// AirportPair is the departure/arrival pair of a flight plan.
type AirportPair struct {
	Departure string `json:"departure"`
	Arrival   string `json:"arrival"`
}

// IsZero reports whether no flight plan has been resolved yet.
func (p AirportPair) IsZero() bool {
	return p.Departure == "" && p.Arrival == ""
}

func (p AirportPair) String() string {
	return p.Departure + " → " + p.Arrival
}

// WeatherReport holds the METAR fields shown for one airport.
type WeatherReport struct {
	Station     string `json:"station,omitempty"`
	Raw         string `json:"raw"`
	FlightRules string `json:"flightRules"`
}

// AtisUnavailableText is shown when no controller is publishing an ATIS.
const AtisUnavailableText = "No vatsim ATIS available"

// AtisReport is the selected ATIS for one airport, or the unavailable sentinel.
type AtisReport struct {
	Callsign    string   `json:"callsign,omitempty"`
	Lines       []string `json:"lines,omitempty"`
	Unavailable bool     `json:"unavailable"`
}

// UnavailableAtis returns the "no ATIS" sentinel.
func UnavailableAtis() AtisReport {
	return AtisReport{Unavailable: true}
}

// Text joins the ATIS lines with newlines.
func (a AtisReport) Text() string {
	if a.Unavailable {
		return AtisUnavailableText
	}
	return strings.Join(a.Lines, "\n")
}

// cleanCode strips whitespace and quoting from an airport code.
func cleanCode(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.ToUpper(strings.TrimSpace(s))
}
