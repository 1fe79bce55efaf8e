package aoi

import (
	"time"

	"github.com/lib/pq"
)

// AOI is a user-defined polygon under monitoring. The three orbit
// fields pin the satellite viewing geometry from the first image seen;
// once set they are never mutated, so every later comparison uses
// geometrically consistent imagery.
type AOI struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	Name        string         `json:"name"`
	Geometry    string         `json:"-"` // GeoJSON text
	CreatedAt   time.Time      `json:"created_date"`
	Active      bool           `gorm:"default:true" json:"active"`
	LastChecked *time.Time     `json:"last_checked"`
	ThresholdDB float64        `json:"threshold_db"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags"`

	OrbitDirection string `json:"orbit_direction"`       // ASCENDING or DESCENDING
	RelativeOrbit  *int   `json:"relative_orbit_number"` // Sentinel-1 relative orbit (1-175)
	Platform       string `json:"platform_number"`       // A or C

	Analyses []Analysis `gorm:"foreignKey:AOIID;constraint:OnDelete:CASCADE" json:"-"`
}

// Analysis is one change-detection run for an AOI. Analyses are ordered
// per AOI by NewImageDate; the newest row is the comparison baseline
// for the next run.
type Analysis struct {
	ID    string `gorm:"primaryKey" json:"id"`
	AOIID string `gorm:"index" json:"aoi_id"`

	ReferenceDate time.Time `json:"reference_date"`
	NewImageDate  time.Time `json:"new_image_date"`
	AnalyzedAt    time.Time `json:"analysis_date"`

	ChangesDetected  bool    `gorm:"default:false" json:"changes_detected"`
	ChangeScore      float64 `gorm:"default:0" json:"change_score"` // avg |dB|
	ChangeAreaSqKm   float64 `gorm:"default:0" json:"change_area_sqkm"`
	ChangePercentage float64 `gorm:"default:0" json:"change_percentage"`

	ChangeMapURL string `json:"change_map_url"`
	RefImageURL  string `json:"ref_image_url"`
	NewImageURL  string `json:"new_image_url"`
	Notes        string `json:"notes"`

	// User feedback; a manual quality signal, nothing automated reads it.
	FalsePositive bool   `gorm:"default:false" json:"false_positive"`
	UserNotes     string `json:"user_notes"`
}

func (AOI) TableName() string {
	return "monitor.aois"
}

func (Analysis) TableName() string {
	return "monitor.analyses"
}
