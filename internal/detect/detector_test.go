package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sarwatch/backend/internal/config"
	"github.com/sarwatch/backend/internal/ee"
)

var testGeom = json.RawMessage(`{"type":"Polygon","coordinates":[[[10,45],[10.1,45],[10.1,45.1],[10,45]]]}`)

// fakeService implements just enough of the computation API for the
// detector: a two-image catalog, canned reduce results, an area, and
// thumbnail URLs.
type fakeService struct {
	maskSum  float64 // changed pixels
	maskMean float64
	absMean  float64 // avg |dB|
	areaSqM  float64

	computeCalls int
	thumbCalls   int
}

func (f *fakeService) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "images:query"):
			var req struct {
				StartTime string `json:"startTime"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			start, _ := time.Parse(time.RFC3339, req.StartTime)
			// Serve the image in the middle of whichever window was asked for.
			mid := start.AddDate(0, 0, 3)
			fmt.Fprintf(w, `{"images":[{"id":"img-%s","time":"%s","orbitPass":"DESCENDING"}]}`,
				mid.Format("20060102"), mid.Format(time.RFC3339))

		case strings.HasSuffix(r.URL.Path, "value:compute"):
			f.computeCalls++
			var req struct {
				Expression ee.Expression `json:"expression"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			reducers, _ := req.Expression.Args["reducers"].([]any)
			if len(reducers) == 2 {
				fmt.Fprintf(w, `{"result":{"VV_sum":%f,"VV_mean":%f}}`, f.maskSum, f.maskMean)
			} else {
				fmt.Fprintf(w, `{"result":{"VV_mean":%f}}`, f.absMean)
			}

		case strings.HasSuffix(r.URL.Path, "geometry:area"):
			fmt.Fprintf(w, `{"areaSquareMeters":%f}`, f.areaSqM)

		case strings.HasSuffix(r.URL.Path, "thumbnails"):
			f.thumbCalls++
			fmt.Fprintf(w, `{"url":"https://thumbs.example/%d.png"}`, f.thumbCalls)

		default:
			http.NotFound(w, r)
		}
	}
}

func newTestDetector(t *testing.T, svc *fakeService) *Detector {
	t.Helper()
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)
	client := ee.NewClient(srv.URL, "p", "", "COPERNICUS/S1_GRD", "IW", "VV")
	return NewDetector(client, config.Default())
}

func TestDetectChangesAboveThreshold(t *testing.T) {
	// 500 changed pixels at 0.0001 km² each = 0.05 km², above the
	// 0.01 km² minimum; AOI of 10 km² gives 0.5%.
	svc := &fakeService{maskSum: 500, maskMean: 0.01, absMean: 4.567, areaSqM: 10e6}
	d := newTestDetector(t, svc)

	res, err := d.DetectChanges(context.Background(), testGeom,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC), 3.0)
	if err != nil {
		t.Fatalf("DetectChanges failed: %v", err)
	}

	if !res.ChangesDetected {
		t.Error("expected changes detected")
	}
	if res.ChangeAreaSqKm != 0.05 {
		t.Errorf("expected 0.05 km², got %f", res.ChangeAreaSqKm)
	}
	if res.ChangePercentage != 0.5 {
		t.Errorf("expected 0.5%%, got %f", res.ChangePercentage)
	}
	if res.AvgChangeDB != 4.57 {
		t.Errorf("expected avg 4.57 dB, got %f", res.AvgChangeDB)
	}
	if res.AOIAreaSqKm != 10 {
		t.Errorf("expected AOI area 10 km², got %f", res.AOIAreaSqKm)
	}
	if res.ThresholdDB != 3.0 {
		t.Errorf("expected threshold 3.0, got %f", res.ThresholdDB)
	}
	if res.ChangeMapURL == "" || res.RefImageURL == "" || res.NewImageURL == "" {
		t.Error("expected all three thumbnail URLs")
	}
	if res.RefImageID == "" || res.NewImageID == "" {
		t.Error("expected resolved image ids")
	}
}

func TestDetectChangesBelowMinimumArea(t *testing.T) {
	// 50 pixels = 0.005 km², under the 0.01 km² minimum.
	svc := &fakeService{maskSum: 50, absMean: 3.4, areaSqM: 10e6}
	d := newTestDetector(t, svc)

	res, err := d.DetectChanges(context.Background(), testGeom,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC), 3.0)
	if err != nil {
		t.Fatalf("DetectChanges failed: %v", err)
	}
	if res.ChangesDetected {
		t.Error("expected no change flag below minimum area")
	}
	if res.ChangeAreaSqKm != 0.005 {
		t.Errorf("expected 0.005 km², got %f", res.ChangeAreaSqKm)
	}
}

func TestDetectChangesDefaultThreshold(t *testing.T) {
	svc := &fakeService{maskSum: 500, absMean: 4, areaSqM: 10e6}
	d := newTestDetector(t, svc)

	res, err := d.DetectChanges(context.Background(), testGeom,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC), 0)
	if err != nil {
		t.Fatalf("DetectChanges failed: %v", err)
	}
	if res.ThresholdDB != config.Default().ChangeThresholdDB {
		t.Errorf("expected config default threshold, got %f", res.ThresholdDB)
	}
}

func TestDetectChangesNoImagery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"images":[]}`)
	}))
	t.Cleanup(srv.Close)
	client := ee.NewClient(srv.URL, "p", "", "COPERNICUS/S1_GRD", "IW", "VV")
	d := NewDetector(client, config.Default())

	_, err := d.DetectChanges(context.Background(), testGeom,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC), 3.0)
	if err == nil {
		t.Error("expected error when no imagery near either date")
	}
}
