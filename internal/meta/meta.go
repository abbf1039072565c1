// Package meta fetches connection metadata from the measurement
// server's JSON endpoints: who the client is, which point of presence
// serves it, and where that point of presence sits.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the measurement server's API root.
const DefaultBaseURL = "https://speed.cloudflare.com"

const requestTimeout = 10 * time.Second

// Meta describes the client connection as seen by the server.
type Meta struct {
	Hostname       string `json:"hostname"`
	ClientIP       string `json:"clientIp"`
	HTTPProtocol   string `json:"httpProtocol"`
	ASN            int64  `json:"asn"`
	ASOrganization string `json:"asOrganization"`
	Colo           string `json:"colo"`
	Country        string `json:"country"`
	City           string `json:"city"`
	Region         string `json:"region"`
	PostalCode     string `json:"postalCode"`
	Latitude       string `json:"latitude"`
	Longitude      string `json:"longitude"`
}

// Location is one point of presence from the locations listing.
type Location struct {
	IATA   string  `json:"iata"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Region string  `json:"region"`
	City   string  `json:"city"`
}

// Trace is the parsed key=value output of the trace endpoint.
type Trace struct {
	IP          string
	Colo        string
	Loc         string
	HTTP        string
	TLS         string
	Warp        string
	VisitScheme string
}

// Client talks to the measurement server's metadata endpoints.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// New returns a Client against the given API root.
func New(baseURL, userAgent string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: requestTimeout},
		logger:    logger,
	}
}

// Fetch returns the connection metadata for the current client.
func (c *Client) Fetch(ctx context.Context) (Meta, error) {
	var m Meta
	if err := c.getJSON(ctx, "/meta", &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Locations returns the server's point-of-presence listing.
func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	var locations []Location
	if err := c.getJSON(ctx, "/locations", &locations); err != nil {
		return nil, err
	}
	return locations, nil
}

// LookupLocation finds the point of presence with the given IATA code.
func LookupLocation(locations []Location, iata string) (Location, bool) {
	for _, loc := range locations {
		if loc.IATA == iata {
			return loc, true
		}
	}
	return Location{}, false
}

// FetchTrace returns the parsed trace endpoint output.
func (c *Client) FetchTrace(ctx context.Context) (Trace, error) {
	body, err := c.get(ctx, "/cdn-cgi/trace")
	if err != nil {
		return Trace{}, err
	}
	return parseTrace(string(body)), nil
}

// parseTrace splits newline-separated key=value pairs into a Trace.
// Unknown keys and malformed lines are ignored.
func parseTrace(raw string) Trace {
	var t Trace
	for _, line := range strings.Split(raw, "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch key {
		case "ip":
			t.IP = value
		case "colo":
			t.Colo = value
		case "loc":
			t.Loc = value
		case "http":
			t.HTTP = value
		case "tls":
			t.TLS = value
		case "warp":
			t.Warp = value
		case "visit_scheme":
			t.VisitScheme = value
		}
	}
	return t
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status: %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}
	return body, nil
}
