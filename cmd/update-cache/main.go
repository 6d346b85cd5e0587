// Command update-cache regenerates the gazetteer cache from a GeoNames dump.
//
// Usage:
//
//	go run ./cmd/update-cache [-config config.yaml]
//
// The dump is downloaded to geonames_path when missing. Curated entries from
// gazetteer_yaml_path are merged in, the result is written to
// gazetteer_cache_path and, when sqlite_path is set, imported into a SQLite
// gazetteer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/andreiashu/toponym"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg, err := toponym.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := toponym.NewLogger(cfg.Log)
	toponym.SetLogger(log)

	if err := run(context.Background(), cfg); err != nil {
		log.Error("cache regeneration failed", "err", err)
		os.Exit(1)
	}
	log.Info("cache regenerated", "path", cfg.GazetteerCachePath)
}

func run(ctx context.Context, cfg *toponym.Config) error {
	if _, err := os.Stat(cfg.GeoNamesPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(cfg.GeoNamesPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		if err := toponym.DownloadGeoNames(cfg.GeoNamesURL, cfg.GeoNamesPath); err != nil {
			return err
		}
	}

	g, err := toponym.LoadGeoNames(cfg.GeoNamesPath, cfg.GazetteerOptions()...)
	if err != nil {
		return err
	}
	if cfg.GazetteerYAMLPath != "" {
		curated, err := toponym.LoadYAMLGazetteer(cfg.GazetteerYAMLPath, cfg.GazetteerOptions()...)
		if err != nil {
			return err
		}
		if err := g.Merge(curated); err != nil {
			return err
		}
	}

	if err := toponym.SaveGazetteer(cfg.GazetteerCachePath, g); err != nil {
		return fmt.Errorf("saving cache: %w", err)
	}
	reloaded, err := toponym.LoadGazetteerCache(cfg.GazetteerCachePath)
	if err != nil {
		return fmt.Errorf("validating cache: %w", err)
	}
	if reloaded.Len() != g.Len() {
		return fmt.Errorf("validating cache: %d locations written, %d read back", g.Len(), reloaded.Len())
	}

	if cfg.SQLitePath == "" {
		return nil
	}
	db, err := toponym.OpenSQLiteGazetteer(ctx, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Import(ctx, g)
}
