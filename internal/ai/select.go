package ai

import (
	"os"

	"ImageCaptioner/internal/config"

	"emperror.dev/errors"
	"go.uber.org/zap"
)

const (
	// ErrNoBackend в режиме auto не нашлось ни ключа OpenAI, ни локального llava.cpp.
	ErrNoBackend = errors.Sentinel("no caption backend available")
	// ErrModelNotFound нет файла модели, бинарника или проектора.
	ErrModelNotFound = errors.Sentinel("model file not found")
)

// Select выбирает и создаёт бэкенд по конфигурации.
// В режиме auto предпочитается OpenAI при наличии ключа, иначе локальный llava.cpp.
func Select(cfg *config.Config, logger *zap.SugaredLogger) (Client, error) {
	backend := cfg.Backend
	if backend == config.BackendAuto {
		switch {
		case cfg.OpenAI.APIKey != "":
			backend = config.BackendOpenAI
		case fileExists(cfg.Llava.BinaryPath):
			backend = config.BackendLlava
		default:
			return nil, errors.WithDetails(ErrNoBackend, "llavaBinary", cfg.Llava.BinaryPath)
		}
		logger.Infow("Backend selected automatically", "backend", backend)
	}

	switch backend {
	case config.BackendOpenAI:
		return NewVisionClient(NewOpenAIClient(cfg), cfg), nil
	case config.BackendLlava:
		if !fileExists(cfg.Llava.BinaryPath) {
			return nil, errors.WithDetails(ErrModelNotFound, "binary", cfg.Llava.BinaryPath)
		}
		if !fileExists(cfg.Llava.ProjectorPath) {
			return nil, errors.WithDetails(ErrModelNotFound, "mmproj", cfg.Llava.ProjectorPath)
		}
		model, err := pickLlavaModel(cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewLlavaClient(cfg, model), nil
	case config.BackendStub:
		return NewStubClient(), nil
	default:
		return nil, errors.Errorf("unknown backend %q", backend)
	}
}

// pickLlavaModel предпочитает квантованную модель; если её нет, откатывается на полную.
func pickLlavaModel(cfg *config.Config, logger *zap.SugaredLogger) (string, error) {
	if q := cfg.Llava.QuantizedModelPath; q != "" {
		if fileExists(q) {
			logger.Infow("Using quantized model", "model", q)
			return q, nil
		}
		logger.Warnw("Quantized model not found, falling back to full model", "quantized", q, "model", cfg.Llava.ModelPath)
	}
	if !fileExists(cfg.Llava.ModelPath) {
		return "", errors.WithDetails(ErrModelNotFound, "model", cfg.Llava.ModelPath)
	}
	return cfg.Llava.ModelPath, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
