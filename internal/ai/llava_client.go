package ai

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"ImageCaptioner/internal/config"
	"ImageCaptioner/internal/service/image"

	"emperror.dev/errors"
)

// llava.cpp держит модель в памяти целиком, два процесса одновременно обычная машина не тянет.
var llavaMutex sync.Mutex

// LlavaClient получает подпись у локального llava.cpp, запуская его отдельным процессом на каждую картинку.
type LlavaClient struct {
	binary      string
	model       string
	projector   string
	temperature float64
	threads     int
	maxTokens   int
	workDir     string // сюда кладётся JPEG для --image
	keepImages  bool   // debug: файлы остаются для просмотра
}

// NewLlavaClient создаёт клиента для уже выбранного файла модели (полного или квантованного).
func NewLlavaClient(cfg *config.Config, modelPath string) *LlavaClient {
	return &LlavaClient{
		binary:      cfg.Llava.BinaryPath,
		model:       modelPath,
		projector:   cfg.Llava.ProjectorPath,
		temperature: cfg.Llava.Temperature,
		threads:     cfg.Llava.Threads,
		maxTokens:   cfg.MaxTokens,
		workDir:     cfg.ProcessedDir,
		keepImages:  cfg.DebugMode,
	}
}

// SendRequest сохраняет картинку в рабочую папку (llava.cpp читает только файл) и запускает модель.
func (c *LlavaClient) SendRequest(ctx context.Context, text string, img image.ProcessedImage) (string, error) {
	imagePath, err := img.Save(c.workDir)
	if err != nil {
		return "", errors.Wrap(err, "save image for llava")
	}
	if !c.keepImages {
		defer os.Remove(imagePath)
	}

	llavaMutex.Lock()
	defer llavaMutex.Unlock()

	cmd := exec.CommandContext(ctx, c.binary, c.args(imagePath, text)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.WithDetails(errors.Wrap(err, "run llava"), "stderr", lastLine(stderr.String()))
	}
	return trimLoaderOutput(stdout.String()), nil
}

func (c *LlavaClient) Name() string { return "llava" }

// Model путь к файлу модели, с которым работает клиент.
func (c *LlavaClient) Model() string { return c.model }

func (c *LlavaClient) args(imagePath, prompt string) []string {
	args := []string{
		"-m", c.model,
		"--mmproj", c.projector,
		"--image", imagePath,
		"--temp", strconv.FormatFloat(c.temperature, 'f', -1, 64),
		"-n", strconv.Itoa(c.maxTokens),
	}
	if c.threads > 0 {
		args = append(args, "-t", strconv.Itoa(c.threads))
	}
	return append(args, "-p", prompt)
}

// trimLoaderOutput отрезает служебный вывод загрузчика перед ответом модели.
func trimLoaderOutput(result string) string {
	const anchor = "per image patch)"
	if i := strings.LastIndex(result, anchor); i != -1 {
		result = result[i+len(anchor):]
	}
	return strings.TrimSpace(result)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i != -1 {
		return s[i+1:]
	}
	return s
}
