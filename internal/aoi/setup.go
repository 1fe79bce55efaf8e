package aoi

import (
	"context"
	"encoding/json"
	"log"

	"github.com/sarwatch/backend/internal/config"
	"github.com/sarwatch/backend/internal/db"
	"github.com/sarwatch/backend/internal/ee"
)

// ImageSource is the slice of the imagery catalog the handlers need:
// baseline lookup on create and windowed queries for time series.
type ImageSource interface {
	LatestImage(ctx context.Context, geometry json.RawMessage, daysBack int) (*ee.ImageInfo, error)
	QueryImages(ctx context.Context, q ee.ImageQuery) ([]ee.ImageInfo, error)
}

// Thumbnailer renders a preview of a single catalog image.
type Thumbnailer interface {
	ImageThumbnail(ctx context.Context, imageID string, geometry json.RawMessage) string
}

// CheckOutcome classifies one check of an AOI against the catalog.
type CheckOutcome int

const (
	OutcomeNoBaseline CheckOutcome = iota
	OutcomeNoNewImages
	OutcomeAnalyzed
)

// Analyzer runs the full select-compare-persist path for one AOI. The
// monitor loop provides the production implementation; the manual
// analyze endpoint shares it so both paths move the same cursor.
type Analyzer interface {
	CheckAOI(ctx context.Context, a *AOI, note string) (CheckOutcome, *Analysis, error)
}

// Package-level collaborators, wired in main after the feature Init.
var (
	Cfg      config.Config
	Catalog  ImageSource
	Thumbs   Thumbnailer
	Analyses Analyzer
)

func Init(cfg config.Config) {
	Cfg = cfg

	if err := db.EnsureSchema(db.DB, "monitor"); err != nil {
		log.Fatal("Failed to create monitor schema: ", err)
	}

	if err := db.DB.AutoMigrate(&AOI{}, &Analysis{}); err != nil {
		log.Fatal("Failed to auto-migrate tables", err)
	}
}
