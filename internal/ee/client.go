package ee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the remote geospatial computation service. All image
// filtering, pixel math and statistics run serverside; the client only
// submits catalog queries and expression graphs.
type Client struct {
	endpoint   string
	project    string
	token      string
	httpClient *http.Client

	collection     string
	instrumentMode string
	polarization   string
}

// NewClient creates a computation-service client. The collection,
// instrument mode and polarization are applied to every catalog query.
func NewClient(endpoint, project, token, collection, instrumentMode, polarization string) *Client {
	return &Client{
		endpoint: endpoint,
		project:  project,
		token:    token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		collection:     collection,
		instrumentMode: instrumentMode,
		polarization:   polarization,
	}
}

// Polarization returns the band every query selects, which is also the
// key prefix of reduceRegion results.
func (c *Client) Polarization() string { return c.polarization }

// ImageQuery describes a catalog search. Zero-valued filters are omitted.
type ImageQuery struct {
	Geometry       json.RawMessage
	Start          time.Time
	End            time.Time
	OrbitDirection string
	RelativeOrbit  *int
	Platform       string
}

// ImageInfo is catalog metadata for a single acquisition. Pixel data
// never leaves the remote service; images are referenced by ID.
type ImageInfo struct {
	ID             string    `json:"id"`
	Date           time.Time `json:"time"`
	OrbitDirection string    `json:"orbitPass"`
	RelativeOrbit  int       `json:"relativeOrbitNumber"`
	Platform       string    `json:"platformNumber"`
}

type queryRequest struct {
	Collection string          `json:"collection"`
	Bounds     json.RawMessage `json:"bounds"`
	StartTime  string          `json:"startTime"`
	EndTime    string          `json:"endTime"`
	Filters    queryFilters    `json:"filters"`
}

type queryFilters struct {
	InstrumentMode string `json:"instrumentMode,omitempty"`
	Polarisation   string `json:"polarisation,omitempty"`
	OrbitPass      string `json:"orbitPass,omitempty"`
	RelativeOrbit  *int   `json:"relativeOrbitNumber,omitempty"`
	Platform       string `json:"platformNumber,omitempty"`
}

type queryResponse struct {
	Images []ImageInfo `json:"images"`
}

// QueryImages returns catalog metadata matching the query, newest first.
func (c *Client) QueryImages(ctx context.Context, q ImageQuery) ([]ImageInfo, error) {
	req := queryRequest{
		Collection: c.collection,
		Bounds:     q.Geometry,
		StartTime:  q.Start.UTC().Format(time.RFC3339),
		EndTime:    q.End.UTC().Format(time.RFC3339),
		Filters: queryFilters{
			InstrumentMode: c.instrumentMode,
			Polarisation:   c.polarization,
			OrbitPass:      q.OrbitDirection,
			RelativeOrbit:  q.RelativeOrbit,
			Platform:       q.Platform,
		},
	}

	var resp queryResponse
	if err := c.post(ctx, "images:query", req, &resp); err != nil {
		return nil, fmt.Errorf("querying image catalog: %w", err)
	}

	// The service sorts newest-first; enforce it anyway since the
	// monitor cursor depends on ordering.
	imgs := resp.Images
	for i := 1; i < len(imgs); i++ {
		for j := i; j > 0 && imgs[j].Date.After(imgs[j-1].Date); j-- {
			imgs[j], imgs[j-1] = imgs[j-1], imgs[j]
		}
	}
	return imgs, nil
}

// LatestImage returns the most recent acquisition over the geometry in
// a trailing window, or nil if the catalog has none.
func (c *Client) LatestImage(ctx context.Context, geometry json.RawMessage, daysBack int) (*ImageInfo, error) {
	now := time.Now().UTC()
	imgs, err := c.QueryImages(ctx, ImageQuery{
		Geometry: geometry,
		Start:    now.AddDate(0, 0, -daysBack),
		End:      now,
	})
	if err != nil {
		return nil, err
	}
	if len(imgs) == 0 {
		return nil, nil
	}
	return &imgs[0], nil
}

// ImageNearDate returns the acquisition closest to the target date
// within ±toleranceDays, or nil if none exists.
func (c *Client) ImageNearDate(ctx context.Context, geometry json.RawMessage, target time.Time, toleranceDays int) (*ImageInfo, error) {
	imgs, err := c.QueryImages(ctx, ImageQuery{
		Geometry: geometry,
		Start:    target.AddDate(0, 0, -toleranceDays),
		End:      target.AddDate(0, 0, toleranceDays),
	})
	if err != nil {
		return nil, err
	}
	if len(imgs) == 0 {
		return nil, nil
	}

	best := imgs[0]
	bestDiff := absDuration(best.Date.Sub(target))
	for _, img := range imgs[1:] {
		if d := absDuration(img.Date.Sub(target)); d < bestDiff {
			best, bestDiff = img, d
		}
	}
	return &best, nil
}

// NewImagesSince returns acquisitions strictly newer than the cursor,
// newest first, restricted to the given viewing geometry. Platform is
// intentionally not a parameter: Sentinel-1A and 1C share relative
// orbits and either may cover the AOI.
func (c *Client) NewImagesSince(ctx context.Context, geometry json.RawMessage, since time.Time, orbitDirection string, relativeOrbit *int) ([]ImageInfo, error) {
	imgs, err := c.QueryImages(ctx, ImageQuery{
		Geometry:       geometry,
		Start:          since,
		End:            time.Now().UTC(),
		OrbitDirection: orbitDirection,
		RelativeOrbit:  relativeOrbit,
	})
	if err != nil {
		return nil, err
	}

	fresh := imgs[:0]
	for _, img := range imgs {
		if img.Date.After(since) {
			fresh = append(fresh, img)
		}
	}
	return fresh, nil
}

type computeRequest struct {
	Expression *Expression `json:"expression"`
}

type computeResponse struct {
	Result map[string]float64 `json:"result"`
}

// ComputeValue evaluates an expression graph serverside and returns the
// named scalar results.
func (c *Client) ComputeValue(ctx context.Context, expr *Expression) (map[string]float64, error) {
	var resp computeResponse
	if err := c.post(ctx, "value:compute", computeRequest{Expression: expr}, &resp); err != nil {
		return nil, fmt.Errorf("computing value: %w", err)
	}
	return resp.Result, nil
}

// ThumbnailOptions control rendering of a serverside thumbnail.
type ThumbnailOptions struct {
	Min        float64         `json:"min"`
	Max        float64         `json:"max"`
	Dimensions int             `json:"dimensions"`
	Region     json.RawMessage `json:"region"`
	Format     string          `json:"format"`
	CRS        string          `json:"crs"`
}

type thumbnailRequest struct {
	Expression *Expression      `json:"expression"`
	Options    ThumbnailOptions `json:"options"`
}

type thumbnailResponse struct {
	URL string `json:"url"`
}

// Thumbnail renders an expression to an image serverside and returns a
// URL to fetch it.
func (c *Client) Thumbnail(ctx context.Context, expr *Expression, opts ThumbnailOptions) (string, error) {
	var resp thumbnailResponse
	if err := c.post(ctx, "thumbnails", thumbnailRequest{Expression: expr, Options: opts}, &resp); err != nil {
		return "", fmt.Errorf("creating thumbnail: %w", err)
	}
	return resp.URL, nil
}

type areaRequest struct {
	Geometry json.RawMessage `json:"geometry"`
}

type areaResponse struct {
	AreaSqMeters float64 `json:"areaSquareMeters"`
}

// GeometryArea returns the geodesic area of a geometry in km².
func (c *Client) GeometryArea(ctx context.Context, geometry json.RawMessage) (float64, error) {
	var resp areaResponse
	if err := c.post(ctx, "geometry:area", areaRequest{Geometry: geometry}, &resp); err != nil {
		return 0, fmt.Errorf("computing geometry area: %w", err)
	}
	return resp.AreaSqMeters / 1e6, nil
}

// post sends a JSON request to a project-scoped endpoint and decodes
// the JSON response.
func (c *Client) post(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/%s", c.endpoint, c.project, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned %d: %s", method, resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
