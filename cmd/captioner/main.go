package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ImageCaptioner/internal/ai"
	"ImageCaptioner/internal/app/console"
	"ImageCaptioner/internal/config"
	"ImageCaptioner/internal/logger"
	"ImageCaptioner/internal/service/captioner"
	"ImageCaptioner/internal/service/image"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.NewConfig()
	interactive := len(cfg.Args) == 0
	if interactive {
		console.Banner(os.Stdout)
	}

	// создаём регистратор zap
	log, err := logger.New(cfg.DebugMode)
	if err != nil {
		panic(err)
	}
	// делаем регистратор SugaredLogger
	sugar := log.Sugar()
	//сброс буфера логгера
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Debugw(
		"Starting app",
		"DebugMode", cfg.DebugMode,
		"Backend", cfg.Backend,
	)

	fmt.Printf("Loading model (%s)...\n", cfg.Backend)
	client, err := ai.Select(cfg, sugar)
	if err != nil {
		sugar.Errorw("Failed to load model", "error", err)
		return 1
	}
	fmt.Print("Model loaded and ready!\n\n")
	sugar.Infow("Backend ready", "backend", client.Name())

	processor := image.NewProcessor(cfg.ImageSize, cfg.JPEGQuality)
	cleaner := image.NewCleaner(sugar)
	ttl := time.Duration(cfg.ProcessedTTLSeconds) * time.Second
	cleaner.Clean(cfg.ProcessedDir, ttl, cfg.DebugMode)
	defer cleaner.Clean(cfg.ProcessedDir, ttl, cfg.DebugMode)

	capt := captioner.New(client, processor,
		captioner.WithPrompt(cfg.Prompt),
		captioner.WithCacheTTL(time.Duration(cfg.CacheTTLSeconds)*time.Second),
		captioner.WithLogger(sugar),
	)
	defer capt.Close()

	// Разовый режим: пути переданы аргументами
	if !interactive {
		c := console.New(nil, os.Stdout, capt, sugar)
		failed := 0
		for _, path := range cfg.Args {
			if ctx.Err() != nil {
				break
			}
			if err := c.Handle(ctx, path); err != nil {
				failed++
			}
		}
		if failed > 0 || ctx.Err() != nil {
			return 1
		}
		return 0
	}

	console.Help(os.Stdout)
	rl, err := console.NewReadline()
	if err != nil {
		sugar.Errorw("Failed to open console", "error", err)
		return 1
	}
	defer func() {
		_ = rl.Close()
	}()

	if err := console.New(rl, os.Stdout, capt, sugar).Run(ctx); err != nil {
		sugar.Errorw("Console stopped with error", "error", err)
		return 1
	}
	return 0
}
