package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/clientcfg"
	homaimcp "github.com/urmzd/homai-panel/pkg/mcp"
)

func main() {
	// Logging must go to stderr, stdout is the MCP transport
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	configPath := flag.String("config", "", "Path to client config (default: ~/.config/homai/panel.yaml)")
	server := flag.String("server", "", "Backend URL, overrides the config file")
	entryID := flag.String("entry", "", "Integration entry id, overrides the config file")
	flag.Parse()

	cfg, err := clientcfg.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *server != "" {
		cfg.Server = *server
	}
	if *entryID != "" {
		cfg.EntryID = *entryID
	}

	client, err := cfg.Dial()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create backend client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close backend client")
		}
	}()

	log.Info().
		Str("server", cfg.Server).
		Str("transport", cfg.Transport).
		Str("entry", cfg.EntryID).
		Msg("Configuration loaded")

	// Create and start MCP server
	mcpServer, err := homaimcp.NewServer(client, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MCP server")
	}

	log.Info().Msg("Starting MCP server on stdio")

	err = mcpServer.ServeStdio()
	mcpServer.Shutdown(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}
