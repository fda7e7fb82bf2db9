// scenario-gen drafts a new campaign file from a theme prompt and
// saves it into the campaign library after schema validation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/leon5354/Coc-AI-Runner/cocai/agents"
	"github.com/leon5354/Coc-AI-Runner/cocai/campaign"
	"github.com/leon5354/Coc-AI-Runner/cocai/config"
	"github.com/leon5354/Coc-AI-Runner/cocai/oracle"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		theme      = flag.String("theme", "", "scenario theme to generate (required)")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file found, using environment variables")
	}

	if *theme == "" {
		fmt.Fprintln(os.Stderr, "usage: scenario-gen -theme \"forbidden library, 1920s Arkham\"")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	provider, err := oracle.New(oracle.ScripterBackend(cfg), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build scripter backend")
	}

	scripter := agents.NewScripter(provider, logger)

	logger.Info().Str("theme", *theme).Msg("generating scenario, this may take a minute")
	raw, err := scripter.GenerateCampaign(context.Background(), *theme)
	if err != nil {
		var perr *agents.ParseError
		if errors.As(err, &perr) {
			fmt.Fprintf(os.Stderr, "model output was not valid JSON; raw output follows:\n%s\n", perr.Raw)
		}
		logger.Fatal().Err(err).Msg("generation failed")
	}

	camp, err := campaign.Parse(raw)
	if err != nil {
		logger.Fatal().Err(err).Msg("generated campaign failed validation")
	}

	lib := campaign.NewLibrary(cfg.Paths.CampaignDir, logger)
	path, err := lib.Save(camp.Title, raw)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to save campaign")
	}

	fmt.Printf("✅ scenario saved to %s\n", path)
	fmt.Printf("title: %s, scenes: %d, party: %d\n", camp.Title, len(camp.Scenes), len(camp.AIParty))
}
