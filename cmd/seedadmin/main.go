// Command seedadmin bootstraps the initial administrator credential.
// Safe to re-run: an existing account is left untouched.
package main

import (
	"errors"
	"flag"
	"log"
	"log/slog"

	"strokeregistry/internal/config"
	"strokeregistry/internal/registry"
	"strokeregistry/internal/util"
	"strokeregistry/pkg/store"
)

func main() {
	email := flag.String("email", "admin@example.com", "administrator email")
	password := flag.String("password", "", "administrator password (required)")
	name := flag.String("name", "Administrator", "display name")
	configPath := flag.String("config", config.ConfigPath, "config file path")
	flag.Parse()

	if *password == "" {
		log.Fatal("seedadmin: -password is required")
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
	reg, err := registry.New(registry.Config{Store: db})
	if err != nil {
		log.Fatalf("failed to init registry: %v", err)
	}

	user, err := reg.Register(*email, *password, *name, "admin")
	if errors.Is(err, registry.ErrEmailTaken) {
		slog.Info("admin account already exists, nothing to do", "email", *email)
		return
	}
	if err != nil {
		log.Fatalf("failed to create admin: %v", err)
	}
	slog.Info("admin account created", "email", user.Email, "role", user.Role)
}
