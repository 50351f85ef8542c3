package console

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ImageCaptioner/internal/service/captioner"

	"emperror.dev/errors"
	"github.com/chzyer/readline"
	"go.uber.org/zap"
)

// Prompt приглашение ко вводу пути.
const Prompt = "Enter image path: "

const rule = "============================================================"

// LineReader источник строк. В проде это readline, в тестах любой сканер.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// Captioner всё, что консоли нужно от сервиса подписей.
type Captioner interface {
	Caption(ctx context.Context, path string) (captioner.Result, error)
}

// Console интерактивный цикл: читает путь, печатает подпись, повторяет.
type Console struct {
	reader    LineReader
	out       io.Writer
	captioner Captioner
	logger    *zap.SugaredLogger
	closeOnce sync.Once
}

func New(reader LineReader, out io.Writer, c Captioner, logger *zap.SugaredLogger) *Console {
	return &Console{reader: reader, out: out, captioner: c, logger: logger}
}

// NewReadline создаёт readline с приглашением и историей в памяти.
func NewReadline() (*readline.Instance, error) {
	return readline.NewEx(readlineConfig())
}

// Приглашение должно быть одной строкой: readline перерисовывает только последнюю,
// поэтому пустая строка перед ним печатается в Run.
func readlineConfig() *readline.Config {
	return &readline.Config{
		Prompt:          Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	}
}

// Banner печатает заголовок интерактивного режима.
func Banner(w io.Writer) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Image Captioner - Interactive Mode")
	fmt.Fprintln(w, rule)
}

// Help печатает список команд.
func Help(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  - Enter image path (e.g., 'pic1.jpg')")
	fmt.Fprintln(w, "  - Type 'quit' or 'exit' to close")
	fmt.Fprintln(w, rule)
}

// Run крутит цикл до команды выхода, конца ввода, Ctrl+C или отмены ctx.
// Ошибки отдельных картинок печатаются и цикл продолжается.
func (c *Console) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.close)
	defer stop()

	for {
		if ctx.Err() != nil {
			fmt.Fprintln(c.out, "\nGoodbye!")
			return nil
		}

		fmt.Fprintln(c.out)
		line, err := c.reader.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) || ctx.Err() != nil {
				fmt.Fprintln(c.out, "\nGoodbye!")
				return nil
			}
			return errors.Wrap(err, "read input")
		}

		input := strings.TrimSpace(line)
		if IsQuit(input) {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}
		if input == "" {
			continue
		}

		_ = c.Handle(ctx, input)
	}
}

// Handle подписывает одну картинку и печатает результат или ошибку.
// Ошибка возвращается только для подсчёта неудач в разовом режиме.
func (c *Console) Handle(ctx context.Context, input string) error {
	path := NormalizePath(input)
	res, err := c.captioner.Caption(ctx, path)
	switch {
	case err == nil:
		fmt.Fprintf(c.out, "[%s] Caption: %s\n\n", input, res.Caption)
		c.logger.Debugw("Caption printed", "requestID", res.RequestID, "backend", res.Backend, "cached", res.Cached, "elapsed", res.Elapsed.String())
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintf(c.out, "❌ Error: File '%s' not found.\n", input)
	default:
		c.logger.Debugw("Caption failed", "path", path, "error", err)
		fmt.Fprintf(c.out, "❌ Error: %v\n", err)
	}
	return err
}

func (c *Console) close() {
	c.closeOnce.Do(func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warnw("Failed to close input", "error", err)
		}
	})
}

// IsQuit команда выхода: quit, exit или q в любом регистре.
func IsQuit(input string) bool {
	switch strings.ToLower(input) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

// NormalizePath снимает одну пару кавычек (перетаскивание файла в терминал) и раскрывает ~/.
func NormalizePath(input string) string {
	if len(input) >= 2 {
		first, last := input[0], input[len(input)-1]
		if first == last && (first == '\'' || first == '"') {
			input = input[1 : len(input)-1]
		}
	}
	if strings.HasPrefix(input, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			input = filepath.Join(home, input[2:])
		}
	}
	return input
}
