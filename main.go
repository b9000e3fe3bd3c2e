package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"podium/internal/config"
	"podium/internal/database"
	"podium/internal/generator"
	"podium/internal/ledger"
	"podium/internal/payment"
	"podium/internal/router"
	"podium/internal/session"
	"podium/internal/voice"
)

func main() {
	// load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// ensure basic directories exist
	if err := ensureDir(filepath.Dir(cfg.Database.Path)); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	// init database
	db, err := database.Init(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	// run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	led := ledger.NewService(db)

	// question/feedback generator, wrapped with bounded retries
	var inner generator.Generator
	if cfg.LLM.UseMock || cfg.LLM.APIKey == "" {
		log.Printf("llm: using mock generator")
		inner = generator.NewMockGenerator()
	} else {
		gem, err := generator.NewGeminiGenerator(context.Background(), cfg.LLM)
		if err != nil {
			log.Fatalf("init generator: %v", err)
		}
		inner = gem
	}
	gen := generator.NewRetrying(inner, cfg.LLM.MaxAttempts,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second)

	engine := session.NewEngine(db, led, gen, session.Costs{
		Interview:    cfg.Credits.InterviewCost,
		Presentation: cfg.Credits.PresentationCost,
	}, cfg.App.MaxTurns)

	catalog := payment.NewCatalog(cfg.Credits.Packages)
	provider := payment.NewPaystackClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey)
	paySvc := payment.NewService(db, led, provider, catalog,
		cfg.Paystack.SecretKey, cfg.Paystack.CallbackURL)

	voiceClient := voice.NewClient(cfg.Voice)

	r := router.SetupRouter(cfg, router.Deps{
		DB:      db,
		Ledger:  led,
		Engine:  engine,
		Payment: paySvc,
		Voice:   voiceClient,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	log.Printf("server listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("run server: %v", err)
	}
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
