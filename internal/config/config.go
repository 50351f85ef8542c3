package config

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Поддерживаемые бэкенды генерации подписей.
const (
	BackendAuto   = "auto"
	BackendOpenAI = "openai"
	BackendLlava  = "llava"
	BackendStub   = "stub"
)

// ConfigFileEnv переменная окружения с путём к необязательному TOML-файлу конфигурации.
const ConfigFileEnv = "CAPTIONER_CONFIG"

const defaultConfigFile = "captioner.toml"

// MinOpenAITokens нижняя граница max_output_tokens в Responses API.
const MinOpenAITokens = 16

type Config struct {
	DebugMode           bool   `env:"DEBUG_MODE" toml:"debug_mode"`                       // Режим дебага: подробные логи, обработанные картинки не удаляются
	Backend             string `env:"CAPTION_BACKEND" toml:"backend"`                     // auto|openai|llava|stub
	Prompt              string `env:"CAPTION_PROMPT" toml:"prompt"`                       // Текст, который отправляется вместе с картинкой
	MaxTokens           int    `env:"CAPTION_MAX_TOKENS" toml:"max_tokens"`               // Максимум токенов в подписи
	ImageSize           int    `env:"IMAGE_SIZE" toml:"image_size"`                       // Сторона квадрата, до которого масштабируется картинка
	JPEGQuality         int    `env:"JPEG_QUALITY" toml:"jpeg_quality"`                   // Качество JPEG после обработки
	ProcessedDir        string `env:"PROCESSED_DIR" toml:"processed_dir"`                 // Папка для обработанных картинок
	ProcessedTTLSeconds int    `env:"PROCESSED_TTL_SECONDS" toml:"processed_ttl_seconds"` // Через сколько секунд обработанные картинки считаются старыми
	CacheTTLSeconds     int    `env:"CACHE_TTL_SECONDS" toml:"cache_ttl_seconds"`         // Время жизни подписи в кэше; 0 — кэш выключен

	OpenAI OpenAIConfig `toml:"openai"`
	Llava  LlavaConfig  `toml:"llava"`
	ONNX   ONNXConfig   `toml:"onnx"`

	// Args позиционные аргументы командной строки (пути к картинкам для разового режима)
	Args []string `toml:"-"`
}

// OpenAIConfig настройки облачной модели через OpenAI Responses API.
type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY" toml:"api_key"`   // Ключ; пусто — в режиме auto выбирается локальный бэкенд
	BaseURL string `env:"OPENAI_BASE_URL" toml:"base_url"` // Необязательный адрес совместимого сервера
	Model   string `env:"OPENAI_MODEL" toml:"model"`
	Detail  string `env:"OPENAI_IMAGE_DETAIL" toml:"detail"` // low|high|auto
}

// LlavaConfig настройки локального llava.cpp.
type LlavaConfig struct {
	BinaryPath         string  `env:"LLAVA_BINARY" toml:"binary"`
	ModelPath          string  `env:"LLAVA_MODEL" toml:"model"`                     // Полная модель
	QuantizedModelPath string  `env:"LLAVA_QUANTIZED_MODEL" toml:"quantized_model"` // Квантованная модель, используется если файл есть
	ProjectorPath      string  `env:"LLAVA_MMPROJ" toml:"mmproj"`
	Temperature        float64 `env:"LLAVA_TEMPERATURE" toml:"temperature"`
	Threads            int     `env:"LLAVA_THREADS" toml:"threads"`
}

// ONNXConfig настройки проверки ONNX Runtime (cmd/smoke).
type ONNXConfig struct {
	LibraryPath string `env:"ONNXRUNTIME_LIB" toml:"library"` // Путь к libonnxruntime; пусто — значение библиотеки по умолчанию
	ModelPath   string `env:"ONNX_MODEL" toml:"model"`
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются TOML-файлом, .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode:           false,
		Backend:             BackendAuto,
		Prompt:              "Describe this image in one short sentence.",
		MaxTokens:           30,
		ImageSize:           384,
		JPEGQuality:         90,
		ProcessedDir:        filepath.Join(os.TempDir(), "captioner"),
		ProcessedTTLSeconds: 600,
		CacheTTLSeconds:     3600,
		OpenAI: OpenAIConfig{
			Model:  "gpt-4o-mini",
			Detail: "low",
		},
		Llava: LlavaConfig{
			BinaryPath:         "./llava-cli",
			ModelPath:          "models/llava-v1.5-7b-f16.gguf",
			QuantizedModelPath: "models/llava-v1.5-7b-q4_k.gguf",
			ProjectorPath:      "models/mmproj-model-f16.gguf",
			Temperature:        0.1,
			Threads:            4,
		},
		ONNX: ONNXConfig{
			ModelPath: "mobilenet_v1_1.0_224_quant.onnx",
		},
	}
}

// NewConfig загружает конфигурацию приложения из os.Args.
// На -h выходит с кодом 0, на любую другую ошибку печатает её и выходит с кодом 2, как flag.ExitOnError.
func NewConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Load собирает конфигурацию: дефолты → TOML → .env → окружение → флаги.
func Load(args []string) (*Config, error) {
	cfg := Defaults()

	path := strings.TrimSpace(os.Getenv(ConfigFileEnv))
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	if err := loadFile(cfg, path, explicit); err != nil {
		return nil, err
	}

	_ = godotenv.Load()
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	fset := flag.NewFlagSet("captioner", flag.ContinueOnError)
	fset.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага")
	fset.StringVar(&cfg.Backend, "backend", cfg.Backend, "бэкенд подписей: auto|openai|llava|stub")
	fset.StringVar(&cfg.Prompt, "prompt", cfg.Prompt, "текст, отправляемый вместе с картинкой")
	fset.IntVar(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "максимум токенов в подписи")
	fset.IntVar(&cfg.ImageSize, "image-size", cfg.ImageSize, "сторона квадрата, до которого масштабируется картинка")
	fset.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "качество JPEG после обработки (1-100)")
	fset.StringVar(&cfg.ProcessedDir, "processed-dir", cfg.ProcessedDir, "папка для обработанных картинок")
	fset.IntVar(&cfg.ProcessedTTLSeconds, "processed-ttl-seconds", cfg.ProcessedTTLSeconds, "через сколько секунд удалять обработанные картинки")
	fset.IntVar(&cfg.CacheTTLSeconds, "cache-ttl-seconds", cfg.CacheTTLSeconds, "время жизни подписи в кэше, 0 — без кэша")
	// OpenAI
	fset.StringVar(&cfg.OpenAI.BaseURL, "openai-base-url", cfg.OpenAI.BaseURL, "адрес OpenAI-совместимого сервера")
	fset.StringVar(&cfg.OpenAI.Model, "openai-model", cfg.OpenAI.Model, "модель OpenAI с поддержкой изображений")
	fset.StringVar(&cfg.OpenAI.Detail, "openai-image-detail", cfg.OpenAI.Detail, "детализация картинки: low|high|auto")
	// llava.cpp
	fset.StringVar(&cfg.Llava.BinaryPath, "llava-binary", cfg.Llava.BinaryPath, "путь к исполняемому файлу llava.cpp")
	fset.StringVar(&cfg.Llava.ModelPath, "llava-model", cfg.Llava.ModelPath, "путь к полной модели llava")
	fset.StringVar(&cfg.Llava.QuantizedModelPath, "llava-quantized-model", cfg.Llava.QuantizedModelPath, "путь к квантованной модели llava (предпочтительна, если файл есть)")
	fset.StringVar(&cfg.Llava.ProjectorPath, "llava-mmproj", cfg.Llava.ProjectorPath, "путь к mmproj проектору")
	fset.Float64Var(&cfg.Llava.Temperature, "llava-temperature", cfg.Llava.Temperature, "температура генерации")
	fset.IntVar(&cfg.Llava.Threads, "llava-threads", cfg.Llava.Threads, "количество потоков llava.cpp")
	// ONNX
	fset.StringVar(&cfg.ONNX.LibraryPath, "onnxruntime-lib", cfg.ONNX.LibraryPath, "путь к разделяемой библиотеке onnxruntime")
	fset.StringVar(&cfg.ONNX.ModelPath, "onnx-model", cfg.ONNX.ModelPath, "путь к проверяемой ONNX модели")
	if err := fset.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parse flags")
	}
	cfg.Args = fset.Args()

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения, без которых работа невозможна.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendOpenAI, BackendLlava, BackendStub:
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	if c.MaxTokens <= 0 {
		return errors.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Backend == BackendOpenAI && c.MaxTokens < MinOpenAITokens {
		return errors.Errorf("openai backend needs at least %d max tokens, got %d", MinOpenAITokens, c.MaxTokens)
	}
	if c.ImageSize <= 0 {
		return errors.Errorf("image size must be positive, got %d", c.ImageSize)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.Errorf("jpeg quality must be within 1..100, got %d", c.JPEGQuality)
	}
	return nil
}

// loadFile накладывает TOML-файл поверх дефолтов. Отсутствующий файл по умолчанию не ошибка.
func loadFile(cfg *Config, path string, explicit bool) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return errors.Wrapf(err, "load config file %s", path)
	}
	return nil
}
