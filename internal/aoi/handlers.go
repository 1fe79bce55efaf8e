package aoi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sarwatch/backend/internal/db"
	"github.com/sarwatch/backend/internal/ee"
	"gorm.io/gorm"
)

type aoiResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Geometry       json.RawMessage `json:"geometry"`
	CreatedDate    time.Time       `json:"created_date"`
	Active         bool            `json:"active"`
	LastChecked    *time.Time      `json:"last_checked"`
	ThresholdDB    float64         `json:"threshold_db"`
	Tags           []string        `json:"tags"`
	OrbitDirection string          `json:"orbit_direction"`
	RelativeOrbit  *int            `json:"relative_orbit_number"`
	Platform       string          `json:"platform_number"`
}

func toResponse(a AOI) aoiResponse {
	return aoiResponse{
		ID:             a.ID,
		Name:           a.Name,
		Geometry:       json.RawMessage(a.Geometry),
		CreatedDate:    a.CreatedAt,
		Active:         a.Active,
		LastChecked:    a.LastChecked,
		ThresholdDB:    a.ThresholdDB,
		Tags:           a.Tags,
		OrbitDirection: a.OrbitDirection,
		RelativeOrbit:  a.RelativeOrbit,
		Platform:       a.Platform,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[aoi] encoding response: %v", err)
	}
}

func ListAOIs(w http.ResponseWriter, r *http.Request) {
	var aois []AOI
	if err := db.DB.Find(&aois).Error; err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]aoiResponse, 0, len(aois))
	for _, a := range aois {
		out = append(out, toResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func CreateAOI(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string          `json:"name"`
		Geometry    json.RawMessage `json:"geometry"`
		ThresholdDB float64         `json:"threshold_db"`
		Tags        []string        `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if input.Name == "" || len(input.Geometry) == 0 {
		http.Error(w, "Name and geometry required", http.StatusBadRequest)
		return
	}
	if input.ThresholdDB <= 0 {
		input.ThresholdDB = Cfg.ChangeThresholdDB
	}

	a := AOI{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Geometry:    string(input.Geometry),
		Active:      true,
		ThresholdDB: input.ThresholdDB,
		Tags:        input.Tags,
	}
	if err := db.DB.Create(&a).Error; err != nil {
		http.Error(w, "Failed to create AOI", http.StatusInternalServerError)
		return
	}

	// Pin viewing geometry and record a baseline analysis from the most
	// recent acquisition. A catalog failure here only delays the
	// baseline; monitoring picks up once one exists.
	if Catalog != nil {
		if err := initializeBaseline(r, &a); err != nil {
			log.Printf("[aoi] baseline initialization for %s failed: %v", a.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, toResponse(a))
}

func initializeBaseline(r *http.Request, a *AOI) error {
	latest, err := Catalog.LatestImage(r.Context(), json.RawMessage(a.Geometry), Cfg.BaselineDaysBack)
	if err != nil {
		return err
	}
	if latest == nil {
		return errors.New("no recent imagery over the AOI")
	}

	a.OrbitDirection = latest.OrbitDirection
	if latest.RelativeOrbit > 0 {
		rel := latest.RelativeOrbit
		a.RelativeOrbit = &rel
	}
	a.Platform = latest.Platform
	a.LastChecked = &latest.Date

	baseline := Analysis{
		ID:            uuid.NewString(),
		AOIID:         a.ID,
		ReferenceDate: latest.Date,
		NewImageDate:  latest.Date,
		AnalyzedAt:    time.Now().UTC(),
		Notes:         "Baseline image",
	}

	return db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&baseline).Error; err != nil {
			return err
		}
		return tx.Save(a).Error
	})
}

func UpdateAOI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var input struct {
		Name        *string   `json:"name"`
		Active      *bool     `json:"active"`
		ThresholdDB *float64  `json:"threshold_db"`
		Tags        *[]string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var a AOI
	if err := db.DB.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "AOI not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	// Viewing-geometry fields are deliberately not updatable.
	if input.Name != nil {
		a.Name = *input.Name
	}
	if input.Active != nil {
		a.Active = *input.Active
	}
	if input.ThresholdDB != nil && *input.ThresholdDB > 0 {
		a.ThresholdDB = *input.ThresholdDB
	}
	if input.Tags != nil {
		a.Tags = *input.Tags
	}

	if err := db.DB.Save(&a).Error; err != nil {
		http.Error(w, "Failed to update AOI", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a))
}

func DeleteAOI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var a AOI
	if err := db.DB.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "AOI not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("aoi_id = ?", id).Delete(&Analysis{}).Error; err != nil {
			return err
		}
		return tx.Delete(&a).Error
	})
	if err != nil {
		http.Error(w, "Failed to delete AOI", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func ManualAnalyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if Analyses == nil {
		http.Error(w, "Analyzer not configured", http.StatusServiceUnavailable)
		return
	}

	var a AOI
	if err := db.DB.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "AOI not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	outcome, analysis, err := Analyses.CheckAOI(r.Context(), &a, "Manual analysis")
	if err != nil {
		http.Error(w, "Analysis failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	switch outcome {
	case OutcomeNoBaseline:
		http.Error(w, "No baseline image. Wait for initialization.", http.StatusBadRequest)
	case OutcomeNoNewImages:
		writeJSON(w, http.StatusOK, map[string]string{"message": "No new images available"})
	case OutcomeAnalyzed:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":          true,
			"analysis_id":      analysis.ID,
			"changes_detected": analysis.ChangesDetected,
			"analysis":         analysis,
		})
	}
}

func ListAnalyses(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var analyses []Analysis
	err := db.DB.
		Where("aoi_id = ?", id).
		Order("new_image_date DESC").
		Find(&analyses).Error
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, analyses)
}

type timeseriesImage struct {
	ID             string    `json:"id"`
	Date           time.Time `json:"date"`
	OrbitDirection string    `json:"orbit_direction"`
	RelativeOrbit  int       `json:"relative_orbit_number"`
	Platform       string    `json:"platform_number"`
	ThumbURL       string    `json:"thumb_url,omitempty"`
}

func Timeseries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	startStr := r.URL.Query().Get("start_date")
	endStr := r.URL.Query().Get("end_date")
	if startStr == "" || endStr == "" {
		http.Error(w, "start_date and end_date required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		http.Error(w, "Invalid start_date", http.StatusBadRequest)
		return
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		http.Error(w, "Invalid end_date", http.StatusBadRequest)
		return
	}

	if Catalog == nil {
		http.Error(w, "Imagery catalog not configured", http.StatusServiceUnavailable)
		return
	}

	var a AOI
	if err := db.DB.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "AOI not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	geom := json.RawMessage(a.Geometry)
	imgs, err := Catalog.QueryImages(r.Context(), ee.ImageQuery{
		Geometry:       geom,
		Start:          start,
		End:            end.AddDate(0, 0, 1), // include the end date
		OrbitDirection: a.OrbitDirection,
		RelativeOrbit:  a.RelativeOrbit,
		Platform:       a.Platform,
	})
	if err != nil {
		http.Error(w, "Catalog query failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(imgs) > Cfg.MaxTimeseriesSize {
		imgs = imgs[:Cfg.MaxTimeseriesSize]
	}

	out := make([]timeseriesImage, 0, len(imgs))
	for _, img := range imgs {
		ts := timeseriesImage{
			ID:             img.ID,
			Date:           img.Date,
			OrbitDirection: img.OrbitDirection,
			RelativeOrbit:  img.RelativeOrbit,
			Platform:       img.Platform,
		}
		if Thumbs != nil {
			ts.ThumbURL = Thumbs.ImageThumbnail(r.Context(), img.ID, geom)
		}
		out = append(out, ts)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"aoi_name": a.Name,
		"orbit_config": map[string]any{
			"orbit_direction": a.OrbitDirection,
			"relative_orbit":  a.RelativeOrbit,
			"platform":        a.Platform,
		},
		"total_images": len(out),
		"images":       out,
	})
}

func Feedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var input struct {
		FalsePositive *bool  `json:"false_positive"`
		Notes         string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var analysis Analysis
	if err := db.DB.First(&analysis, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Analysis not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	// Flag defaults to true: posting feedback at all usually means the
	// reviewer is disputing the detection.
	analysis.FalsePositive = true
	if input.FalsePositive != nil {
		analysis.FalsePositive = *input.FalsePositive
	}
	analysis.UserNotes = input.Notes

	if err := db.DB.Save(&analysis).Error; err != nil {
		http.Error(w, "Failed to save feedback", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
