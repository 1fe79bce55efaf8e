package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sarwatch/backend/internal/aoi"
	"github.com/sarwatch/backend/internal/detect"
	"github.com/sarwatch/backend/internal/ee"
)

// Catalog is the imagery lookup the loop needs.
type Catalog interface {
	NewImagesSince(ctx context.Context, geometry json.RawMessage, since time.Time, orbitDirection string, relativeOrbit *int) ([]ee.ImageInfo, error)
}

// Detector runs one remote change-detection comparison.
type Detector interface {
	DetectChanges(ctx context.Context, geometry json.RawMessage, refDate, newDate time.Time, thresholdDB float64) (*detect.Result, error)
}

// Notifier pushes an alert for a detected change.
type Notifier interface {
	SendChangeAlert(ctx context.Context, aoiName, aoiID string, res *detect.Result) error
}

// Monitor polls the catalog for every active AOI on a fixed interval
// and runs at most one comparison per AOI per cycle. AOIs are processed
// sequentially; one AOI's failure never aborts the rest of the cycle.
type Monitor struct {
	Store    Store
	Catalog  Catalog
	Detector Detector
	Notifier Notifier
	Interval time.Duration
}

// Run executes one eager cycle, then one per interval until the context
// is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	log.Printf("[monitor] started, checking every %s", m.Interval)
	m.CheckAll(ctx)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[monitor] stopped")
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll runs one monitoring cycle over all active AOIs.
func (m *Monitor) CheckAll(ctx context.Context) {
	log.Println("[monitor] starting cycle")

	aois, err := m.Store.ActiveAOIs(ctx)
	if err != nil {
		log.Printf("[monitor] loading active AOIs: %v", err)
		return
	}
	if len(aois) == 0 {
		log.Println("[monitor] no active AOIs, skipping cycle")
		return
	}
	log.Printf("[monitor] %d active AOI(s) to check", len(aois))

	for i := range aois {
		a := &aois[i]
		if ctx.Err() != nil {
			return
		}

		outcome, rec, err := m.CheckAOI(ctx, a, fmt.Sprintf("Automatic analysis (threshold: %g dB)", a.ThresholdDB))
		if err != nil {
			log.Printf("[monitor] AOI %s (%s): %v", a.ID, a.Name, err)
			continue
		}

		switch outcome {
		case aoi.OutcomeNoBaseline:
			log.Printf("[monitor] AOI %s (%s): no baseline yet, skipping", a.ID, a.Name)
		case aoi.OutcomeNoNewImages:
			log.Printf("[monitor] AOI %s (%s): no new images", a.ID, a.Name)
		case aoi.OutcomeAnalyzed:
			log.Printf("[monitor] AOI %s (%s): changed=%v area=%.4f km² (%.2f%%) magnitude=%.2f dB",
				a.ID, a.Name, rec.ChangesDetected, rec.ChangeAreaSqKm, rec.ChangePercentage, rec.ChangeScore)
			if rec.ChangesDetected && m.Notifier != nil {
				if err := m.Notifier.SendChangeAlert(ctx, a.Name, a.ID, resultFromAnalysis(rec)); err != nil {
					log.Printf("[monitor] AOI %s: notification failed: %v", a.ID, err)
				}
			}
		}
	}

	log.Println("[monitor] cycle completed")
}

// CheckAOI compares the AOI against the newest acquisition since its
// last analysis and persists the outcome. The cursor is the previous
// analysis's NewImageDate, so it only ever moves forward. The platform
// is left unconstrained on purpose: Sentinel-1A and 1C share relative
// orbits and a replacement satellite must keep monitoring alive.
func (m *Monitor) CheckAOI(ctx context.Context, a *aoi.AOI, note string) (aoi.CheckOutcome, *aoi.Analysis, error) {
	last, err := m.Store.LatestAnalysis(ctx, a.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("loading latest analysis: %w", err)
	}
	if last == nil {
		return aoi.OutcomeNoBaseline, nil, nil
	}

	geom := json.RawMessage(a.Geometry)
	imgs, err := m.Catalog.NewImagesSince(ctx, geom, last.NewImageDate, a.OrbitDirection, a.RelativeOrbit)
	if err != nil {
		return 0, nil, fmt.Errorf("querying catalog: %w", err)
	}

	now := time.Now().UTC()
	if len(imgs) == 0 {
		if err := m.Store.TouchLastChecked(ctx, a.ID, now); err != nil {
			return 0, nil, fmt.Errorf("updating last checked: %w", err)
		}
		return aoi.OutcomeNoNewImages, nil, nil
	}

	newest := imgs[0]
	res, err := m.Detector.DetectChanges(ctx, geom, last.NewImageDate, newest.Date, a.ThresholdDB)
	if err != nil {
		return 0, nil, fmt.Errorf("change detection: %w", err)
	}

	rec := &aoi.Analysis{
		ID:               uuid.NewString(),
		AOIID:            a.ID,
		ReferenceDate:    last.NewImageDate,
		NewImageDate:     res.NewDate,
		AnalyzedAt:       now,
		ChangesDetected:  res.ChangesDetected,
		ChangeScore:      res.AvgChangeDB,
		ChangeAreaSqKm:   res.ChangeAreaSqKm,
		ChangePercentage: res.ChangePercentage,
		ChangeMapURL:     res.ChangeMapURL,
		RefImageURL:      res.RefImageURL,
		NewImageURL:      res.NewImageURL,
		Notes:            note,
	}
	if err := m.Store.SaveResult(ctx, a, rec); err != nil {
		return 0, nil, fmt.Errorf("persisting analysis: %w", err)
	}

	return aoi.OutcomeAnalyzed, rec, nil
}

// resultFromAnalysis rebuilds the notifier's view of a persisted
// analysis row.
func resultFromAnalysis(rec *aoi.Analysis) *detect.Result {
	return &detect.Result{
		ChangesDetected:  rec.ChangesDetected,
		ChangeAreaSqKm:   rec.ChangeAreaSqKm,
		ChangePercentage: rec.ChangePercentage,
		AvgChangeDB:      rec.ChangeScore,
		ChangeMapURL:     rec.ChangeMapURL,
		RefImageURL:      rec.RefImageURL,
		NewImageURL:      rec.NewImageURL,
		ReferenceDate:    rec.ReferenceDate,
		NewDate:          rec.NewImageDate,
	}
}
