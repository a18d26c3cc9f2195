package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"

	"QuantMini/internal/di"
	"QuantMini/pkg/config"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env", ".env", "dotenv file with credentials")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		log.Printf("quantmini: %v", err)
		os.Exit(1)
	}
}

// run blocks until SIGINT or SIGTERM.
func run(configPath, envFile string) error {
	// credentials may come from the environment alone
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return app.Run()
}
