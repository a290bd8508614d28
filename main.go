package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slack-go/slack"
)

func main() {
	cfg := LoadConfig()

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	memory := NewMemoryManager(db)
	bus := NewBus()

	var analyzer Analyzer
	switch cfg.AnalysisProvider {
	case "anthropic":
		analyzer = NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	default:
		gemini := NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if !gemini.ValidateKey(ctx) {
			log.Println("Warning: Gemini API key validation failed; checks may error until it is fixed")
		}
		cancel()
		analyzer = gemini
	}

	names := make([]string, len(cfg.Spots))
	for i, spot := range cfg.Spots {
		names[i] = spot.Name
	}
	ids := ResolveSpotIDs(db, names)

	reg := NewRegistry()
	for _, spotCfg := range cfg.Spots {
		source, err := NewImageSource(spotCfg)
		if err != nil {
			log.Fatalf("spot '%s': %v", spotCfg.Name, err)
		}
		reg.Add(NewSpot(ids[spotCfg.Name], spotCfg, memory, analyzer, source, bus))
	}
	log.Printf("Tracking %d spots", reg.SpotCount())

	var api *slack.Client
	if cfg.SlackEnabled() {
		api = slack.New(cfg.SlackBotToken, slack.OptionAppLevelToken(cfg.SlackAppToken))
		SubscribeSlackNotifier(bus, api, cfg.SpotChannelID)
	}

	for _, spot := range reg.Spots() {
		spot.StartScheduler()
	}

	// Initial sweep so scheduled spots publish a state right away instead of
	// waiting out their first interval.
	for _, spot := range reg.Spots() {
		if spotRunsPerDay(cfg, spot.Name()) > 0 {
			go spot.Check(ReasonInitial)
		}
	}

	StartOverdueReminder(cfg, reg, api)

	log.Println("Starting spotcheck...")
	if cfg.SlackEnabled() {
		if err := StartSlackBot(cfg, reg, api); err != nil {
			log.Fatalf("Slack bot error: %v", err)
		}
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down...")
	reg.StopAll()
}

func spotRunsPerDay(cfg Config, name string) int {
	for _, spot := range cfg.Spots {
		if spot.Name == name {
			return spot.RunsPerDay
		}
	}
	return 0
}
