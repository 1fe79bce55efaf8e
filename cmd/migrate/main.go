// Ad hoc schema migration: adds the columns introduced after the first
// release (thumbnail URLs and feedback on analyses, viewing-geometry
// pinning and tags on AOIs). Safe to run repeatedly.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	godotenv.Load(".env.local")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}

	stmts := []string{
		`ALTER TABLE monitor.analyses ADD COLUMN IF NOT EXISTS ref_image_url varchar(512)`,
		`ALTER TABLE monitor.analyses ADD COLUMN IF NOT EXISTS new_image_url varchar(512)`,
		`ALTER TABLE monitor.analyses ADD COLUMN IF NOT EXISTS false_positive boolean DEFAULT false`,
		`ALTER TABLE monitor.analyses ADD COLUMN IF NOT EXISTS user_notes text`,
		`ALTER TABLE monitor.aois ADD COLUMN IF NOT EXISTS orbit_direction varchar(20)`,
		`ALTER TABLE monitor.aois ADD COLUMN IF NOT EXISTS relative_orbit integer`,
		`ALTER TABLE monitor.aois ADD COLUMN IF NOT EXISTS platform varchar(10)`,
		`ALTER TABLE monitor.aois ADD COLUMN IF NOT EXISTS tags text[]`,
	}

	fmt.Println("Running database migration...")
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			log.Fatalf("Migration failed: %v\n  statement: %s", err, stmt)
		}
		fmt.Printf("  ok: %s\n", stmt)
	}

	var aoiCount int64
	if err := db.Table("monitor.aois").Count(&aoiCount).Error; err == nil {
		fmt.Printf("\nMigration complete. %d AOI(s) in database.\n", aoiCount)
		if aoiCount > 0 {
			fmt.Println("Existing AOIs have NULL orbit values; run cmd/backfill-orbit to pin them.")
		}
	}
}
