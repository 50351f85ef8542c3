package ai

import (
	"context"
	"strings"

	"ImageCaptioner/internal/config"
	"ImageCaptioner/internal/service/image"

	"emperror.dev/errors"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// VisionClient отправляет текст и картинку в OpenAI через Responses API
type VisionClient struct {
	client    *openai.Client
	model     string
	detail    responses.ResponseInputImageDetail
	maxTokens int64
}

func NewVisionClient(client *openai.Client, cfg *config.Config) *VisionClient {
	model := cfg.OpenAI.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	detail := responses.ResponseInputImageDetail(strings.ToLower(cfg.OpenAI.Detail))
	switch detail {
	case responses.ResponseInputImageDetailLow, responses.ResponseInputImageDetailHigh, responses.ResponseInputImageDetailAuto:
	default:
		detail = responses.ResponseInputImageDetailAuto
	}
	// в режиме auto Validate не знает, что выберется OpenAI, поэтому поднимаем до минимума API здесь
	maxTokens := max(cfg.MaxTokens, config.MinOpenAITokens)
	return &VisionClient{
		client:    client,
		model:     model,
		detail:    detail,
		maxTokens: int64(maxTokens),
	}
}

// NewOpenAIClient создаёт клиента OpenAI. Пустой ключ берётся из OPENAI_API_KEY самим SDK.
func NewOpenAIClient(cfg *config.Config, opts ...option.RequestOption) *openai.Client {
	base := make([]option.RequestOption, 0, len(opts)+2)
	if cfg.OpenAI.APIKey != "" {
		base = append(base, option.WithAPIKey(cfg.OpenAI.APIKey))
	}
	if cfg.OpenAI.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	client := openai.NewClient(append(base, opts...)...)
	return &client
}

func (c *VisionClient) SendRequest(ctx context.Context, text string, img image.ProcessedImage) (string, error) {
	if c.client == nil {
		return "", errors.New("nil openai client")
	}
	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(c.maxTokens),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(
					responses.ResponseInputMessageContentListParam{
						{
							OfInputText: &responses.ResponseInputTextParam{
								Text: text,
							},
						},
						{
							OfInputImage: &responses.ResponseInputImageParam{
								Detail:   c.detail,
								ImageURL: openai.String(img.DataURL()),
							},
						},
					},
					responses.EasyInputMessageRoleUser,
				),
			},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "openai responses request")
	}

	return strings.TrimSpace(resp.OutputText()), nil
}

func (c *VisionClient) Name() string { return "openai:" + c.model }
