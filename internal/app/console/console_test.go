package console

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ImageCaptioner/internal/service/captioner"

	"emperror.dev/errors"
	"github.com/chzyer/readline"
	"go.uber.org/zap"
)

type scriptedReader struct {
	lines  []string
	end    error
	closed bool
}

func (r *scriptedReader) Readline() (string, error) {
	if r.closed {
		return "", io.EOF
	}
	if len(r.lines) == 0 {
		if r.end != nil {
			return "", r.end
		}
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

type fakeCaptioner struct {
	calls []string
}

func (f *fakeCaptioner) Caption(_ context.Context, path string) (captioner.Result, error) {
	f.calls = append(f.calls, path)
	switch {
	case strings.Contains(path, "missing"):
		return captioner.Result{}, errors.Wrap(&fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}, "read image")
	case strings.Contains(path, "broken"):
		return captioner.Result{}, errors.New("decode image: unknown format")
	}
	return captioner.Result{Path: path, Caption: "a cat on a sofa", Backend: "fake"}, nil
}

func run(t *testing.T, r *scriptedReader) (string, *fakeCaptioner) {
	t.Helper()
	var out bytes.Buffer
	fc := &fakeCaptioner{}
	c := New(r, &out, fc, zap.NewNop().Sugar())
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String(), fc
}

func TestRunCaptionsAndQuits(t *testing.T) {
	out, fc := run(t, &scriptedReader{lines: []string{"pic1.jpg", "quit", "pic2.jpg"}})

	if !strings.Contains(out, "[pic1.jpg] Caption: a cat on a sofa\n") {
		t.Errorf("missing caption line in %q", out)
	}
	if !strings.HasSuffix(out, "Goodbye!\n") {
		t.Errorf("output should end with Goodbye!, got %q", out)
	}
	if len(fc.calls) != 1 {
		t.Errorf("calls = %v, input after quit must not be processed", fc.calls)
	}
}

func TestRunQuitWordsAreCaseInsensitive(t *testing.T) {
	for _, word := range []string{"quit", "EXIT", "Q", "  q  "} {
		out, fc := run(t, &scriptedReader{lines: []string{word, "pic.jpg"}})
		if len(fc.calls) != 0 {
			t.Errorf("%q: expected loop to stop, calls = %v", word, fc.calls)
		}
		if out != "\nGoodbye!\n" {
			t.Errorf("%q: output = %q", word, out)
		}
	}
}

func TestRunIgnoresEmptyInput(t *testing.T) {
	out, fc := run(t, &scriptedReader{lines: []string{"", "   ", "\t", "exit"}})
	if len(fc.calls) != 0 {
		t.Errorf("empty lines must be ignored, calls = %v", fc.calls)
	}
	if out != "\n\n\n\nGoodbye!\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRunPrintsBlankLineBeforeEachPrompt(t *testing.T) {
	out, _ := run(t, &scriptedReader{lines: []string{"pic1.jpg", "q"}})

	want := "\n[pic1.jpg] Caption: a cat on a sofa\n\n\nGoodbye!\n"
	if out != want {
		t.Errorf("output = %q\nwant     %q", out, want)
	}
}

func TestReadlinePromptIsSingleLine(t *testing.T) {
	cfg := readlineConfig()
	if cfg.Prompt != Prompt {
		t.Errorf("Prompt = %q, want %q", cfg.Prompt, Prompt)
	}
	if strings.Contains(cfg.Prompt, "\n") {
		t.Error("multi-line prompt breaks readline redraw")
	}
}

func TestRunMissingFileContinues(t *testing.T) {
	out, fc := run(t, &scriptedReader{lines: []string{"missing.jpg", "pic1.jpg", "q"}})

	if !strings.Contains(out, "❌ Error: File 'missing.jpg' not found.\n") {
		t.Errorf("missing not-found message in %q", out)
	}
	if !strings.Contains(out, "[pic1.jpg] Caption:") {
		t.Errorf("loop should continue after not-found, got %q", out)
	}
	if len(fc.calls) != 2 {
		t.Errorf("calls = %v", fc.calls)
	}
}

func TestRunOtherErrorContinues(t *testing.T) {
	out, _ := run(t, &scriptedReader{lines: []string{"broken.jpg", "pic1.jpg", "q"}})

	if !strings.Contains(out, "❌ Error: decode image: unknown format\n") {
		t.Errorf("missing generic error in %q", out)
	}
	if !strings.Contains(out, "[pic1.jpg] Caption:") {
		t.Errorf("loop should continue after error, got %q", out)
	}
}

func TestRunEndOfInput(t *testing.T) {
	for name, end := range map[string]error{"eof": io.EOF, "interrupt": readline.ErrInterrupt} {
		t.Run(name, func(t *testing.T) {
			out, _ := run(t, &scriptedReader{lines: []string{"pic1.jpg"}, end: end})
			if !strings.HasSuffix(out, "\nGoodbye!\n") {
				t.Errorf("output = %q", out)
			}
		})
	}
}

func TestRunReadError(t *testing.T) {
	var out bytes.Buffer
	c := New(&scriptedReader{end: errors.New("tty gone")}, &out, &fakeCaptioner{}, zap.NewNop().Sugar())
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected read error")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	r := &scriptedReader{lines: []string{"pic1.jpg"}}
	fc := &fakeCaptioner{}
	if err := New(r, &out, fc, zap.NewNop().Sugar()).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(fc.calls) != 0 {
		t.Errorf("calls = %v", fc.calls)
	}
	if out.String() != "\nGoodbye!\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunStripsQuotes(t *testing.T) {
	_, fc := run(t, &scriptedReader{lines: []string{`"my pic.jpg"`, "q"}})
	if len(fc.calls) != 1 || fc.calls[0] != "my pic.jpg" {
		t.Errorf("calls = %v", fc.calls)
	}
}

func TestNormalizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		in, want string
	}{
		{"pic1.jpg", "pic1.jpg"},
		{"'a b.png'", "a b.png"},
		{`"a b.png"`, "a b.png"},
		{`"unbalanced.png'`, `"unbalanced.png'`},
		{`"`, `"`},
		{"~/pics/x.jpg", filepath.Join(home, "pics", "x.jpg")},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBannerAndHelp(t *testing.T) {
	var buf bytes.Buffer
	Banner(&buf)
	Help(&buf)
	out := buf.String()
	for _, want := range []string{"Image Captioner - Interactive Mode", "Enter image path", "'quit' or 'exit'"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestHandleReturnsError(t *testing.T) {
	var out bytes.Buffer
	c := New(&scriptedReader{}, &out, &fakeCaptioner{}, zap.NewNop().Sugar())

	if err := c.Handle(context.Background(), "pic1.jpg"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := c.Handle(context.Background(), "missing.jpg"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	if !strings.Contains(out.String(), "❌ Error: File 'missing.jpg' not found.") {
		t.Errorf("output = %q", out.String())
	}
}
