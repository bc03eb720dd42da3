package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"armory/internal/config"
	"armory/internal/repository"
	"armory/internal/repository/sqlite"
)

func main() {
	cfg := config.Load()

	capturesDir := flag.String("captures", cfg.CaptureDirectory, "Directory containing captured frames")
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	flag.Parse()

	fmt.Printf("Migrating captures from %s to database %s\n", *capturesDir, *dbPath)

	// Opening the database creates the schema
	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	categories := sqlite.NewCategoryRepository(db)
	added, err := repository.SeedCategories(categories, time.Now())
	if err != nil {
		log.Fatalf("Failed to seed categories: %v", err)
	}
	fmt.Printf("Seeded %d categories\n", added)

	files, err := os.ReadDir(*capturesDir)
	if os.IsNotExist(err) {
		fmt.Println("No capture directory, nothing to import")
		return
	}
	if err != nil {
		log.Fatalf("Failed to read captures directory: %v", err)
	}

	captures := sqlite.NewCaptureRepository(db)
	imported, skipped := 0, 0
	for _, file := range files {
		if file.IsDir() || !strings.EqualFold(filepath.Ext(file.Name()), ".jpg") {
			continue
		}

		existing, err := captures.GetCaptureByName(file.Name())
		if err != nil {
			log.Printf("Skipping %s: %v", file.Name(), err)
			skipped++
			continue
		}
		if existing != nil {
			skipped++
			continue
		}

		info, err := file.Info()
		if err != nil {
			log.Printf("Failed to get info for %s: %v", file.Name(), err)
			skipped++
			continue
		}

		path := filepath.Join(*capturesDir, file.Name())
		if err := captures.InsertCapture(file.Name(), path, info.Size(), info.ModTime(), false); err != nil {
			log.Printf("Failed to import %s: %v", file.Name(), err)
			skipped++
			continue
		}
		imported++
	}

	fmt.Printf("Imported %d captures\n", imported)
	if skipped > 0 {
		fmt.Printf("Skipped %d files (already imported or errors)\n", skipped)
	}

	total, err := captures.CountActive()
	if err == nil {
		size, _ := captures.TotalActiveSize()
		fmt.Printf("\nDatabase statistics:\n")
		fmt.Printf("   Active captures: %d\n", total)
		fmt.Printf("   Total size: %d bytes\n", size)
	}
}
