package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"bookshelf.org/internal/config"
	"bookshelf.org/internal/db"
	"bookshelf.org/internal/migrate"
	"bookshelf.org/internal/obs"
)

const usage = "usage: migrate [flags] up|down|seed|status"

func main() {
	dbCfg, err := config.LoadDatabase(flagArgs(os.Args[1:]))
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(2)
	}
	logger := obs.NewLogger(os.Stderr, slog.LevelInfo)

	cmd := command(os.Args[1:])
	if cmd == "" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, dbCfg, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	mgr := migrate.NewManager(pool.DB(), migrate.WithLogger(logger))

	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var v int64
		v, err = mgr.Status(ctx)
		if err == nil {
			fmt.Printf("schema version: %d\n", v)
		}
	}
	if err != nil {
		logger.Error("migrate failed", "command", cmd, "error", err)
		pool.Close()
		os.Exit(1)
	}
}

// flagArgs drops the trailing command so config.Load only sees flags.
func flagArgs(args []string) []string {
	if n := len(args); n > 0 && isCommand(args[n-1]) {
		return args[:n-1]
	}
	return args
}

func command(args []string) string {
	if n := len(args); n > 0 && isCommand(args[n-1]) {
		return args[n-1]
	}
	return ""
}

func isCommand(s string) bool {
	switch s {
	case "up", "down", "seed", "status":
		return true
	}
	return false
}
