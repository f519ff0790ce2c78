// Command qdf-server serves the QDF REST and WebSocket API. Configuration
// comes from config.yaml (or MSY_CONFIG_FILE) and MSY_* variables.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"macrosynergy/internal/app"
)

func main() {
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("qdf-server %s %s\n", app.Version, app.BuildTime)
		return
	}

	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
