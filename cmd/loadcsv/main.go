// Command loadcsv imports a stroke dataset CSV into the patient store.
// Rows that fail validation or collide with existing ids are skipped
// and reported, never aborting the whole import.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"strokeregistry/internal/config"
	"strokeregistry/internal/util"
	"strokeregistry/pkg/domain"
	"strokeregistry/pkg/security"
	"strokeregistry/pkg/store"
)

func main() {
	path := flag.String("file", "", "CSV file to import (required)")
	configPath := flag.String("config", config.ConfigPath, "config file path")
	flag.Parse()

	if *path == "" {
		log.Fatal("loadcsv: -file is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	db, err := store.NewGormStore(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("failed to open csv: %v", err)
	}
	defer f.Close()

	imported, skipped, err := importCSV(f, db)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}
	slog.Info("import finished", "imported", imported, "skipped", skipped)
}

func importCSV(r io.Reader, patients store.PatientStore) (imported, skipped int, err error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "gender", "age", "stroke"} {
		if _, ok := cols[required]; !ok {
			return 0, 0, fmt.Errorf("missing column %q", required)
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			slog.Warn("skipping malformed row", "line", line, "err", err)
			skipped++
			continue
		}
		patient, err := parseRow(cols, record)
		if err != nil {
			slog.Warn("skipping invalid row", "line", line, "err", err)
			skipped++
			continue
		}
		if err := security.ValidatePatient(&patient); err != nil {
			slog.Warn("skipping invalid row", "line", line, "err", err)
			skipped++
			continue
		}
		if err := patients.InsertPatient(patient); err != nil {
			if errors.Is(err, store.ErrDuplicateID) {
				slog.Warn("skipping duplicate id", "line", line, "id", patient.ID)
				skipped++
				continue
			}
			return imported, skipped, fmt.Errorf("insert patient %d: %w", patient.ID, err)
		}
		imported++
	}
	return imported, skipped, nil
}

func parseRow(cols map[string]int, record []string) (domain.Patient, error) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	intField := func(name string) (int, error) {
		raw := field(name)
		if raw == "" {
			return 0, nil
		}
		return strconv.Atoi(raw)
	}
	// Unknown numeric values (the dataset uses "N/A") become zero.
	floatField := func(name string) float64 {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return 0
		}
		return v
	}

	id, err := strconv.Atoi(field("id"))
	if err != nil {
		return domain.Patient{}, fmt.Errorf("bad id %q", field("id"))
	}
	hypertension, err := intField("hypertension")
	if err != nil {
		return domain.Patient{}, fmt.Errorf("bad hypertension value")
	}
	heartDisease, err := intField("heart_disease")
	if err != nil {
		return domain.Patient{}, fmt.Errorf("bad heart_disease value")
	}
	stroke, err := intField("stroke")
	if err != nil {
		return domain.Patient{}, fmt.Errorf("bad stroke value")
	}

	return domain.Patient{
		ID:              id,
		Gender:          field("gender"),
		Age:             floatField("age"),
		Hypertension:    hypertension,
		HeartDisease:    heartDisease,
		EverMarried:     field("ever_married"),
		WorkType:        field("work_type"),
		ResidenceType:   field("residence_type"),
		AvgGlucoseLevel: floatField("avg_glucose_level"),
		BMI:             floatField("bmi"),
		SmokingStatus:   field("smoking_status"),
		Stroke:          stroke,
	}, nil
}
