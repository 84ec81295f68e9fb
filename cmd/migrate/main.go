package main

import (
	"fmt"
	"os"

	"github.com/notaflow/notaflow/internal/config"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/migrations"
	"github.com/notaflow/notaflow/internal/postgres"
	"github.com/notaflow/notaflow/internal/types"
)

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(types.LogLevelInfo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	switch command {
	case "up":
		err = migrations.Up(db.DB)
	case "down":
		err = migrations.Down(db.DB)
	case "status":
		err = migrations.Status(db.DB)
	default:
		log.Fatalf("unknown command %q, expected up, down or status", command)
	}
	if err != nil {
		log.Fatalf("migration %s failed: %v", command, err)
	}
	log.Infow("migration command completed", "command", command)
}
