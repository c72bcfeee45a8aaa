package main

import (
	"log/slog"
	"os"

	"github.com/mmynk/ledger/internal/cli"
	"github.com/mmynk/ledger/pkg/logging"
)

func main() {
	// Replaced by the configured logger once flags and config are resolved.
	logging.Setup()

	if err := cli.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
