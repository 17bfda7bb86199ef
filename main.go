package main

import (
	"fmt"
	"os"

	// Embed the IANA database so stored time zones resolve on minimal images
	_ "time/tzdata"

	"github.com/tphakala/birdnet-scout/cmd"
	"github.com/tphakala/birdnet-scout/internal/buildinfo"
	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = buildinfo.UnknownValue
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	centralLogger, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		return 1
	}
	logger.SetGlobal(centralLogger)
	defer func() {
		if err := centralLogger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing logger: %v\n", err)
		}
	}()

	build := buildinfo.NewContext(version, buildDate)
	if err := cmd.RootCommand(settings, build).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
