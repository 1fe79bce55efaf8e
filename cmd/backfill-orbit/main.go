// Backfills viewing-geometry pins for AOIs created before orbit
// pinning existed. For each AOI with no orbit direction, it looks up
// the acquisition nearest that AOI's baseline date and copies the orbit
// properties onto the AOI, so future comparisons stay geometrically
// consistent with the imagery already analyzed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sarwatch/backend/internal/aoi"
	"github.com/sarwatch/backend/internal/config"
	"github.com/sarwatch/backend/internal/ee"
)

const dateToleranceDays = 3

func main() {
	godotenv.Load(".env.local")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}

	client := ee.NewClient(cfg.EEEndpoint, cfg.EEProject, cfg.EEToken,
		cfg.Collection, cfg.InstrumentMode, cfg.Polarization)

	var aois []aoi.AOI
	if err := db.Where("orbit_direction IS NULL OR orbit_direction = ''").Find(&aois).Error; err != nil {
		log.Fatalf("Loading AOIs: %v", err)
	}
	if len(aois) == 0 {
		fmt.Println("All AOIs already have orbit metadata.")
		return
	}
	fmt.Printf("Found %d AOI(s) without orbit metadata\n", len(aois))

	ctx := context.Background()
	updated := 0

	for i := range aois {
		a := &aois[i]

		// The earliest analysis marks the baseline image whose viewing
		// geometry the AOI should be pinned to.
		var first aoi.Analysis
		err := db.Where("aoi_id = ?", a.ID).Order("new_image_date ASC").First(&first).Error
		if err != nil {
			fmt.Printf("  %s (%s): no analyses, skipping\n", a.ID, a.Name)
			continue
		}

		img, err := client.ImageNearDate(ctx, json.RawMessage(a.Geometry), first.NewImageDate, dateToleranceDays)
		if err != nil {
			fmt.Printf("  %s (%s): catalog lookup failed: %v\n", a.ID, a.Name, err)
			continue
		}
		if img == nil {
			fmt.Printf("  %s (%s): no image near %s\n", a.ID, a.Name, first.NewImageDate.Format("2006-01-02"))
			continue
		}

		a.OrbitDirection = img.OrbitDirection
		if img.RelativeOrbit > 0 {
			rel := img.RelativeOrbit
			a.RelativeOrbit = &rel
		}
		a.Platform = img.Platform

		if err := db.Save(a).Error; err != nil {
			fmt.Printf("  %s (%s): save failed: %v\n", a.ID, a.Name, err)
			continue
		}
		fmt.Printf("  %s (%s): pinned %s / orbit %d / platform %s\n",
			a.ID, a.Name, img.OrbitDirection, img.RelativeOrbit, img.Platform)
		updated++
	}

	fmt.Printf("\nBackfill complete: %d of %d AOI(s) updated.\n", updated, len(aois))
}
