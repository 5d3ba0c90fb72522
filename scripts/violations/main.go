// Command violations inspects and resets off-platform violation counters and
// prepares admin credentials, outside the running server.
package main

import (
	"fmt"
	"os"

	"venty/internal/config"
	"venty/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()
	logger.Init()

	if err := newRootCmd(loadConfig).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	cfg.ApplyEnvironmentOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
