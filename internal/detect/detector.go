package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/sarwatch/backend/internal/config"
	"github.com/sarwatch/backend/internal/ee"
)

// Sentinel-1 GRD is delivered at 10 m resolution, so one pixel of the
// change mask covers 100 m² = 0.0001 km².
const (
	reduceScaleMeters = 10
	pixelAreaSqKm     = 0.0001
	maxPixels         = 1e9
	epsilon           = 1e-10

	// How far from the requested date an acquisition may be.
	dateToleranceDays = 3

	thumbnailSize = 512
	thumbnailCRS  = "EPSG:3857"

	// Display range for SAR backscatter in dB.
	sarVisMinDB = -25
	sarVisMaxDB = 5
)

// Result carries the outcome of one remote change-detection run.
type Result struct {
	ChangesDetected  bool    `json:"changes_detected"`
	ChangeAreaSqKm   float64 `json:"change_area_sqkm"`
	ChangePercentage float64 `json:"change_percentage"`
	AvgChangeDB      float64 `json:"avg_change_db"`
	AOIAreaSqKm      float64 `json:"aoi_area_sqkm"`
	ThresholdDB      float64 `json:"threshold_db"`

	ChangeMapURL string `json:"change_map_url"`
	RefImageURL  string `json:"ref_image_url"`
	NewImageURL  string `json:"new_image_url"`

	ReferenceDate time.Time `json:"reference_date_actual"`
	NewDate       time.Time `json:"new_date_actual"`
	RefImageID    string    `json:"reference_image_id"`
	NewImageID    string    `json:"new_image_id"`
}

// Detector runs the fixed log-ratio pipeline against the remote
// computation service: resolve images, speckle-filter, clip, log-ratio,
// threshold, reduce. Nothing is computed locally beyond unit conversion.
type Detector struct {
	Client *ee.Client
	Cfg    config.Config
}

func NewDetector(client *ee.Client, cfg config.Config) *Detector {
	return &Detector{Client: client, Cfg: cfg}
}

// DetectChanges compares the acquisitions closest to refDate and newDate
// over the geometry, flagging change where |10·log10(new/ref)| exceeds
// thresholdDB over at least MinChangeAreaSqKm.
func (d *Detector) DetectChanges(ctx context.Context, geometry json.RawMessage, refDate, newDate time.Time, thresholdDB float64) (*Result, error) {
	if thresholdDB <= 0 {
		thresholdDB = d.Cfg.ChangeThresholdDB
	}

	refInfo, err := d.Client.ImageNearDate(ctx, geometry, refDate, dateToleranceDays)
	if err != nil {
		return nil, fmt.Errorf("resolving reference image: %w", err)
	}
	newInfo, err := d.Client.ImageNearDate(ctx, geometry, newDate, dateToleranceDays)
	if err != nil {
		return nil, fmt.Errorf("resolving new image: %w", err)
	}
	if refInfo == nil || newInfo == nil {
		return nil, fmt.Errorf("no imagery within %d days of the requested dates", dateToleranceDays)
	}

	// A pass-direction mismatch means different viewing geometry and a
	// high false-positive risk; the comparison still runs.
	if refInfo.OrbitDirection != "" && newInfo.OrbitDirection != "" &&
		refInfo.OrbitDirection != newInfo.OrbitDirection {
		log.Printf("[detect] WARNING: orbit direction mismatch (ref %s, new %s)",
			refInfo.OrbitDirection, newInfo.OrbitDirection)
	}

	band := d.Client.Polarization()
	ref := ee.Image(refInfo.ID, band).FocalMedian(d.Cfg.SpeckleRadiusPx).Clip(geometry)
	cur := ee.Image(newInfo.ID, band).FocalMedian(d.Cfg.SpeckleRadiusPx).Clip(geometry)

	logRatio := cur.AddConstant(epsilon).
		Divide(ref.AddConstant(epsilon)).
		Log10().
		MultiplyConstant(10)
	mask := logRatio.Abs().Gt(thresholdDB)

	stats, err := d.Client.ComputeValue(ctx,
		mask.ReduceRegion([]string{"sum", "mean"}, geometry, reduceScaleMeters, maxPixels))
	if err != nil {
		return nil, fmt.Errorf("reducing change mask: %w", err)
	}

	magnitude, err := d.Client.ComputeValue(ctx,
		logRatio.Abs().ReduceRegion([]string{"mean"}, geometry, reduceScaleMeters, maxPixels))
	if err != nil {
		return nil, fmt.Errorf("reducing change magnitude: %w", err)
	}

	aoiArea, err := d.Client.GeometryArea(ctx, geometry)
	if err != nil {
		return nil, fmt.Errorf("computing aoi area: %w", err)
	}

	changedPixels := stats[band+"_sum"]
	changeArea := changedPixels * pixelAreaSqKm
	changePct := 0.0
	if aoiArea > 0 {
		changePct = changeArea / aoiArea * 100
	}

	res := &Result{
		ChangesDetected:  changeArea >= d.Cfg.MinChangeAreaSqKm,
		ChangeAreaSqKm:   round(changeArea, 4),
		ChangePercentage: round(changePct, 2),
		AvgChangeDB:      round(magnitude[band+"_mean"], 2),
		AOIAreaSqKm:      round(aoiArea, 2),
		ThresholdDB:      thresholdDB,
		ReferenceDate:    refInfo.Date,
		NewDate:          newInfo.Date,
		RefImageID:       refInfo.ID,
		NewImageID:       newInfo.ID,
	}

	// Thumbnails are best-effort: a rendering failure loses the preview
	// but not the analysis.
	res.ChangeMapURL = d.changeMapThumbnail(ctx, logRatio, geometry, thresholdDB)
	res.RefImageURL = d.sarThumbnail(ctx, ref, geometry)
	res.NewImageURL = d.sarThumbnail(ctx, cur, geometry)

	return res, nil
}

// changeMapThumbnail renders the change map: red where backscatter
// dropped past the threshold, blue where it rose.
func (d *Detector) changeMapThumbnail(ctx context.Context, logRatio *ee.Expression, geometry json.RawMessage, thresholdDB float64) string {
	vis := ee.RGB(
		logRatio.Lt(-thresholdDB).MultiplyConstant(255),
		ee.Constant(0),
		logRatio.Gt(thresholdDB).MultiplyConstant(255),
	)
	url, err := d.Client.Thumbnail(ctx, vis, ee.ThumbnailOptions{
		Min:        0,
		Max:        255,
		Dimensions: thumbnailSize,
		Region:     geometry,
		Format:     "png",
		CRS:        thumbnailCRS,
	})
	if err != nil {
		log.Printf("[detect] change map thumbnail failed: %v", err)
		return ""
	}
	return url
}

// ImageThumbnail renders a grayscale preview of a single catalog image
// clipped to the geometry, or "" when rendering fails. Used by the
// time-series endpoint.
func (d *Detector) ImageThumbnail(ctx context.Context, imageID string, geometry json.RawMessage) string {
	img := ee.Image(imageID, d.Client.Polarization()).Clip(geometry)
	return d.sarThumbnail(ctx, img, geometry)
}

// sarThumbnail renders a grayscale backscatter preview of one image.
func (d *Detector) sarThumbnail(ctx context.Context, img *ee.Expression, geometry json.RawMessage) string {
	url, err := d.Client.Thumbnail(ctx, img, ee.ThumbnailOptions{
		Min:        sarVisMinDB,
		Max:        sarVisMaxDB,
		Dimensions: thumbnailSize,
		Region:     geometry,
		Format:     "png",
		CRS:        thumbnailCRS,
	})
	if err != nil {
		log.Printf("[detect] SAR thumbnail failed: %v", err)
		return ""
	}
	return url
}

func round(v float64, places int) float64 {
	f := math.Pow10(places)
	return math.Round(v*f) / f
}
