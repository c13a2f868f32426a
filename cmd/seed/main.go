package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/lgu-bplo/bizpermit-backend/config"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/service"
	"github.com/lgu-bplo/bizpermit-backend/internal/db"
)

// Imports the business type catalog from an XLSX sheet with the columns
// Name, Description, Base Fee. Existing types are updated by name.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run cmd/seed/main.go <xlsx_file_path>")
	}

	filePath := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		log.Fatal("Failed to open XLSX:", err)
	}
	defer f.Close()

	types, err := service.ReadBusinessTypesXLSX(f)
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}

	fmt.Printf("Business types to import: %d\n", len(types))
	for _, bt := range types {
		fmt.Printf("  %-30s %s\n", bt.Name, bt.BaseFee.StringFixed(2))
	}

	fmt.Print("Do you want to proceed with the import? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" && confirm != "y" {
		fmt.Println("Import cancelled.")
		return
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		log.Fatal("Failed to rewind XLSX:", err)
	}

	svc := service.NewBusinessTypeService(repository.NewBusinessTypeRepository(db.GetDB()))
	imported, err := svc.ImportXLSX(f)
	if err != nil {
		log.Fatal("Import failed:", err)
	}

	fmt.Printf("Import completed: %d business types saved\n", imported)
}
