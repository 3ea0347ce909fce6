package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/HaDeSMonsta/get-flight-data/pkg/fetch"
)

// DefaultAtisEndpoint is the VATSIM ATIS lookup service.
const DefaultAtisEndpoint = "https://api.t538.net/vatsim/atis"

// Callsign markers distinguishing departure and arrival ATIS stations.
const (
	DepartureMarker = "_D_ATIS"
	ArrivalMarker   = "_A_ATIS"
)

// AtisResolver picks the ATIS matching a departure or arrival role.
type AtisResolver struct {
	fetcher  fetch.Fetcher
	endpoint string
}

// NewAtisResolver creates a resolver using endpoint (DefaultAtisEndpoint if empty).
func NewAtisResolver(f fetch.Fetcher, endpoint string) *AtisResolver {
	if endpoint == "" {
		endpoint = DefaultAtisEndpoint
	}
	return &AtisResolver{fetcher: f, endpoint: strings.TrimRight(endpoint, "/")}
}

type atisEntry struct {
	Callsign string          `json:"callsign"`
	TextAtis json.RawMessage `json:"text_atis"`
}

// URI builds <endpoint>/<icao>.
func (r *AtisResolver) URI(airportCode string) string {
	return r.endpoint + "/" + url.PathEscape(airportCode)
}

// Resolve fetches the ATIS list for airportCode and selects the entry for the role.
func (r *AtisResolver) Resolve(ctx context.Context, airportCode string, isDeparture bool) (AtisReport, error) {
	code := cleanCode(airportCode)
	if code == "" {
		return AtisReport{}, fmt.Errorf("atis: empty airport code")
	}
	body, err := r.fetcher.Get(ctx, r.URI(code))
	if err != nil {
		return AtisReport{}, fmt.Errorf("fetch atis %s: %w", code, err)
	}
	return ParseAtis(body, isDeparture)
}

// ParseAtis applies the selection rules to an ATIS lookup response body.
func ParseAtis(body string, isDeparture bool) (AtisReport, error) {
	if strings.TrimSpace(body) == "[]" {
		return UnavailableAtis(), nil
	}

	role := roleName(isDeparture)
	var entries []atisEntry
	if err := json.Unmarshal([]byte(body), &entries); err != nil {
		return AtisReport{}, fmt.Errorf("%w: %s atis response is not a JSON array: %v", ErrUpstreamFormat, role, err)
	}
	if len(entries) == 0 {
		return UnavailableAtis(), nil
	}

	selected, err := selectEntry(entries, isDeparture)
	if err != nil {
		return AtisReport{}, err
	}

	lines, ok, err := atisLines(selected.TextAtis)
	if err != nil {
		return AtisReport{}, fmt.Errorf("%w: %s text_atis: %v", ErrUpstreamFormat, role, err)
	}
	if !ok {
		return UnavailableAtis(), nil
	}
	return AtisReport{Callsign: selected.Callsign, Lines: lines}, nil
}

func selectEntry(entries []atisEntry, isDeparture bool) (atisEntry, error) {
	if len(entries) == 1 {
		return entries[0], nil
	}

	marker := ArrivalMarker
	if isDeparture {
		marker = DepartureMarker
	}
	callsigns := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(e.Callsign, marker) {
			return e, nil
		}
		callsigns = append(callsigns, e.Callsign)
	}
	return atisEntry{}, fmt.Errorf("%w: none of %s contain %s",
		ErrProtocolViolation, strings.Join(callsigns, ", "), marker)
}

// atisLines decodes text_atis, which is either a JSON array of strings or a
// string holding a textual array encoding. ok is false when the value is null.
func atisLines(raw json.RawMessage) ([]string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false, nil
	}

	if raw[0] == '[' {
		var parts []string
		if err := json.Unmarshal(raw, &parts); err != nil {
			return nil, false, err
		}
		return compactLines(parts), true, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, false, err
	}
	return SplitAtisText(encoded), true, nil
}

// SplitAtisText splits a comma-separated, individually quoted line list.
func SplitAtisText(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"`)
	}
	return compactLines(parts)
}

func compactLines(parts []string) []string {
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}

func roleName(isDeparture bool) string {
	if isDeparture {
		return "departure"
	}
	return "arrival"
}
