package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stemsi/speaking-test/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := kingpin.New("migrate", "Speaking test database migrations.")
	migrationDir := app.Flag("path", "Path to migration files.").Default("migrations").String()
	dbURL := app.Flag("database-url", "PostgreSQL URL. Defaults to DATABASE_URL.").String()

	upCmd := app.Command("up", "Apply all pending migrations.")
	downCmd := app.Command("down", "Revert all migrations.")
	versionCmd := app.Command("version", "Print the current migration version.")
	forceCmd := app.Command("force", "Force the migration version without running migrations.")
	forceVersion := forceCmd.Arg("version", "Version to force.").Required().Int()

	cmd, err := app.Parse(args)
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	if *dbURL == "" {
		*dbURL = config.Load().DatabaseURL
	}
	if *dbURL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+*migrationDir, *dbURL)
	if err != nil {
		return fmt.Errorf("migration failed to initialize: %w", err)
	}
	defer m.Close()

	switch cmd {
	case upCmd.FullCommand():
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("up failed: %w", err)
		}
		fmt.Println("Migrated up successfully")
	case downCmd.FullCommand():
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("down failed: %w", err)
		}
		fmt.Println("Migrated down successfully")
	case versionCmd.FullCommand():
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("version failed: %w", err)
		}
		fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)
	case forceCmd.FullCommand():
		if err := m.Force(*forceVersion); err != nil {
			return fmt.Errorf("force failed: %w", err)
		}
		fmt.Printf("Forced version to %d\n", *forceVersion)
	}
	return nil
}
