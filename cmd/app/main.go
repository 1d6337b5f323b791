package main

import (
	"context"
	"log"
	"os"

	"PriceSentinel/internal/di"
	"PriceSentinel/pkg/config"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config/config.yaml", "config file path")
	envFile := pflag.String("env-file", ".env", "optional dotenv file loaded before the config")
	pflag.Parse()

	_ = godotenv.Load(*envFile) // best-effort

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	err = app.Run(context.Background())
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
