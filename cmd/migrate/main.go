// Package main applies or rolls back the world database schema.
//
// Usage:
//
//	migrate [-config path] [-migrations dir] [-steps n] up|down
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cory-johannsen/nosgate/internal/config"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	migrationsDir := flag.String("migrations", "migrations", "directory holding the *.sql migrations")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	direction := "up"
	if flag.NArg() > 0 {
		direction = flag.Arg(0)
	}
	if direction != "up" && direction != "down" {
		log.Fatalf("unknown direction %q: want up or down", direction)
	}

	dbCfg, err := config.LoadDatabase(*configPath)
	if err != nil {
		log.Fatalf("loading database config: %v", err)
	}

	began := time.Now()
	v, err := postgres.Migrate(dbCfg.DSN(), *migrationsDir, direction == "down", *steps)
	if err != nil {
		log.Fatal(err)
	}
	state := "migrated " + direction
	if !v.Changed {
		state = "already current"
	}
	fmt.Fprintf(os.Stdout, "%s: schema version %d (dirty=%t) in %s\n", state, v.Version, v.Dirty, time.Since(began).Round(time.Millisecond))
}
