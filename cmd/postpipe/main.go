// Package main is the entry point for the postpipe service.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jonesrussell/postpipe/internal/app"
)

var (
	// version can be set at build time via -ldflags
	version = "dev"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	command := "run"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	switch command {
	case "run":
		runService(*configPath)
	case "version":
		log.Printf("postpipe version %s\n", version)
		os.Exit(0)
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	default:
		log.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runService(configPath string) {
	a, err := app.New(app.Options{
		ConfigPath: configPath,
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize service: %v", err)
	}
	defer a.Close()

	if err := a.Run(context.Background()); err != nil {
		log.Fatalf("Service exited with error: %v", err)
	}
}

func printUsage() {
	log.Println("Postpipe - scheduled content publishing service")
	log.Println()
	log.Println("Usage:")
	log.Println("  postpipe [flags] [command]")
	log.Println()
	log.Println("Commands:")
	log.Println("  run        Start the publishing service (default)")
	log.Println("  version    Print version information")
	log.Println("  help       Show this help message")
	log.Println()
	log.Println("Flags:")
	log.Println("  -config    Path to configuration file (default: config.yaml)")
	log.Println()
	log.Println("Environment Variables:")
	log.Println("  POSTGRES_HOST / POSTGRES_PORT / POSTGRES_USER")
	log.Println("  POSTGRES_PASSWORD / POSTGRES_DB   - content store connection")
	log.Println("  REDIS_ADDR / REDIS_PASSWORD       - command bus connection")
	log.Println("  POSTPIPE_PORT                     - HTTP port for the API")
	log.Println("  PIPELINE_CHECK_INTERVAL           - queue check interval (default: 1h)")
	log.Println("  PIPELINE_ENABLED                  - enable/disable automatic publishing")
	log.Println("  APP_DEBUG                         - verbose console logging")
}
