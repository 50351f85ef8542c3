package main

import (
	"context"
	"fmt"
	"os"

	"ImageCaptioner/internal/config"
	"ImageCaptioner/internal/logger"
	"ImageCaptioner/internal/runtime/onnxcheck"
)

func main() {
	cfg := config.NewConfig()

	log, err := logger.New(cfg.DebugMode)
	if err != nil {
		panic(err)
	}
	sugar := log.Sugar()

	model := cfg.ONNX.ModelPath
	if len(cfg.Args) > 0 {
		model = cfg.Args[0]
	}

	report, err := onnxcheck.Check(context.Background(), cfg.ONNX.LibraryPath, model)
	if err != nil {
		sugar.Errorw("ONNX Runtime check failed", "model", model, "error", err)
		_ = log.Sync()
		os.Exit(1)
	}

	fmt.Println("✅ ONNX Runtime works!")
	fmt.Print(report.Summary())
	_ = log.Sync()
}
