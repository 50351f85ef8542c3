package ai

import (
	"context"

	"ImageCaptioner/internal/service/image"
)

// StubCaption ответ заглушки.
const StubCaption = "a placeholder caption"

// StubClient заглушка, которая не делает реальных запросов
type StubClient struct{}

func NewStubClient() *StubClient { return &StubClient{} }

func (c *StubClient) SendRequest(ctx context.Context, _ string, _ image.ProcessedImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return StubCaption, nil
}

func (c *StubClient) Name() string { return "stub" }
