// Package location resolves GPS coordinates to human-readable area names
// via the public Nominatim reverse geocoding API. Resolution is strictly
// best effort: a slow or failing geocoder must never delay or fail an
// incident submission.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	nominatimURL   = "https://nominatim.openstreetmap.org/reverse"
	requestTimeout = 3 * time.Second
	userAgent      = "janmitra-backend/1.0"
)

// Area is the resolved place metadata for a coordinate pair.
type Area struct {
	AreaName string
	City     string
	State    string
}

// Resolver performs reverse geocoding lookups.
type Resolver struct {
	client *http.Client
	base   string
}

// NewResolver returns a resolver with the hard 3 second timeout applied.
func NewResolver() *Resolver {
	return &Resolver{
		client: &http.Client{Timeout: requestTimeout},
		base:   nominatimURL,
	}
}

type nominatimResponse struct {
	Address struct {
		Suburb        string `json:"suburb"`
		Neighbourhood string `json:"neighbourhood"`
		Village       string `json:"village"`
		Town          string `json:"town"`
		City          string `json:"city"`
		County        string `json:"county"`
		State         string `json:"state"`
	} `json:"address"`
}

// Reverse resolves the coordinates to an area. Any failure (network, non-200,
// malformed body) is returned as an error; callers log and continue without
// the enrichment.
func (r *Resolver) Reverse(ctx context.Context, lat, lon float64) (Area, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s?format=json&lat=%f&lon=%f&zoom=14", r.base, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Area{}, err
	}
	// Nominatim's usage policy requires an identifying user agent.
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return Area{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Area{}, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Area{}, err
	}

	a := Area{
		AreaName: firstNonEmpty(body.Address.Suburb, body.Address.Neighbourhood, body.Address.Village),
		City:     firstNonEmpty(body.Address.City, body.Address.Town, body.Address.County),
		State:    body.Address.State,
	}
	return a, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
