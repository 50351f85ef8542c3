package captioner

import (
	"bytes"
	"context"
	stdimage "image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"ImageCaptioner/internal/service/image"

	"emperror.dev/errors"
)

type fakeClient struct {
	caption string
	err     error
	calls   atomic.Int32
	prompt  string
}

func (f *fakeClient) SendRequest(_ context.Context, text string, img image.ProcessedImage) (string, error) {
	f.calls.Add(1)
	f.prompt = text
	if len(img.Data) == 0 {
		return "", errors.New("empty image")
	}
	return f.caption, f.err
}

func (f *fakeClient) Name() string { return "fake" }

func writeImage(t *testing.T, dir, name string, c color.Color) string {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 20, 10))
	for y := range 10 {
		for x := range 20 {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newProcessor(t *testing.T) *image.Processor {
	return image.NewProcessor(64, 80)
}

func TestCaptionReturnsNonEmptyCaption(t *testing.T) {
	client := &fakeClient{caption: "a blue square"}
	c := New(client, newProcessor(t), WithPrompt("What is it?"))
	defer c.Close()

	path := writeImage(t, t.TempDir(), "pic1.png", color.RGBA{B: 255, A: 255})
	res, err := c.Caption(context.Background(), path)
	if err != nil {
		t.Fatalf("Caption: %v", err)
	}
	if res.Caption != "a blue square" {
		t.Errorf("Caption = %q", res.Caption)
	}
	if res.Path != path || res.Backend != "fake" || res.RequestID == "" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Cached {
		t.Error("first call must not be cached")
	}
	if client.prompt != "What is it?" {
		t.Errorf("prompt = %q", client.prompt)
	}
}

func TestCaptionUsesCacheForSameContent(t *testing.T) {
	client := &fakeClient{caption: "a red square"}
	c := New(client, newProcessor(t), WithCacheTTL(time.Minute))
	defer c.Close()

	dir := t.TempDir()
	first := writeImage(t, dir, "a.png", color.RGBA{R: 255, A: 255})
	copyOf := writeImage(t, dir, "b.png", color.RGBA{R: 255, A: 255})

	if _, err := c.Caption(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	res, err := c.Caption(context.Background(), copyOf)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached || res.Caption != "a red square" {
		t.Errorf("expected cached caption, got %+v", res)
	}
	if n := client.calls.Load(); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}
}

func TestCaptionWithoutCacheAlwaysCallsBackend(t *testing.T) {
	client := &fakeClient{caption: "x"}
	c := New(client, newProcessor(t))
	defer c.Close()

	path := writeImage(t, t.TempDir(), "a.png", color.White)
	for range 2 {
		if _, err := c.Caption(context.Background(), path); err != nil {
			t.Fatal(err)
		}
	}
	if n := client.calls.Load(); n != 2 {
		t.Errorf("backend calls = %d, want 2", n)
	}
}

func TestCaptionMissingFile(t *testing.T) {
	client := &fakeClient{caption: "x"}
	c := New(client, newProcessor(t))
	defer c.Close()

	_, err := c.Caption(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
	if n := client.calls.Load(); n != 0 {
		t.Errorf("backend must not be called, calls = %d", n)
	}
}

func TestCaptionEmptyIsError(t *testing.T) {
	c := New(&fakeClient{caption: ""}, newProcessor(t), WithCacheTTL(time.Minute))
	defer c.Close()

	path := writeImage(t, t.TempDir(), "a.png", color.Black)
	if _, err := c.Caption(context.Background(), path); !errors.Is(err, ErrEmptyCaption) {
		t.Fatalf("expected ErrEmptyCaption, got %v", err)
	}
}

func TestCaptionBackendError(t *testing.T) {
	boom := errors.New("backend down")
	c := New(&fakeClient{err: boom}, newProcessor(t))
	defer c.Close()

	path := writeImage(t, t.TempDir(), "a.png", color.Black)
	_, err := c.Caption(context.Background(), path)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}
