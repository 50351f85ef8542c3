package captioner

import (
	"context"
	"time"

	"ImageCaptioner/internal/ai"
	"ImageCaptioner/internal/service/image"

	"emperror.dev/errors"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

// ErrEmptyCaption модель ответила пустой строкой.
const ErrEmptyCaption = errors.Sentinel("model returned an empty caption")

const defaultPrompt = "Describe this image in one short sentence."

// Result подпись к одной картинке.
type Result struct {
	RequestID string
	Path      string
	Caption   string
	Backend   string
	Cached    bool
	Elapsed   time.Duration
}

// Captioner держит загруженный бэкенд и конвейер подготовки картинок.
// Создаётся один раз; после создания только читается.
type Captioner struct {
	client    ai.Client
	processor *image.Processor
	logger    *zap.SugaredLogger
	prompt    string
	cacheTTL  time.Duration
	cache     *ttlcache.Cache[string, string]
}

type Option func(*Captioner)

// WithPrompt задаёт текст, отправляемый вместе с картинкой.
func WithPrompt(prompt string) Option {
	return func(c *Captioner) {
		if prompt != "" {
			c.prompt = prompt
		}
	}
}

// WithCacheTTL включает кэш подписей по содержимому файла. Ноль выключает кэш.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Captioner) { c.cacheTTL = ttl }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Captioner) { c.logger = logger }
}

func New(client ai.Client, processor *image.Processor, opts ...Option) *Captioner {
	c := &Captioner{
		client:    client,
		processor: processor,
		logger:    zap.NewNop().Sugar(),
		prompt:    defaultPrompt,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheTTL > 0 {
		c.cache = ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](c.cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		)
		go c.cache.Start()
	}
	return c
}

// Backend имя используемого бэкенда.
func (c *Captioner) Backend() string { return c.client.Name() }

// Caption готовит картинку, получает подпись у бэкенда и возвращает её.
func (c *Captioner) Caption(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	res := Result{
		RequestID: uuid.NewString(),
		Path:      path,
		Backend:   c.client.Name(),
	}
	log := c.logger.With("requestID", res.RequestID, "path", path)

	img, err := c.processor.Process(path)
	if err != nil {
		return res, err
	}
	log.Debugw("Image prepared", "name", img.Name, "bytes", img.SizeBytes)

	key := c.cacheKey(img)
	if c.cache != nil {
		if item := c.cache.Get(key); item != nil {
			res.Caption = item.Value()
			res.Cached = true
			res.Elapsed = time.Since(start)
			log.Debugw("Caption served from cache")
			return res, nil
		}
	}

	caption, err := c.client.SendRequest(ctx, c.prompt, img)
	if err != nil {
		return res, errors.Wrapf(err, "caption %s", path)
	}
	if caption == "" {
		return res, errors.WithDetails(ErrEmptyCaption, "backend", res.Backend)
	}
	if c.cache != nil {
		c.cache.Set(key, caption, ttlcache.DefaultTTL)
	}

	res.Caption = caption
	res.Elapsed = time.Since(start)
	log.Debugw("Caption generated", "elapsed", res.Elapsed.String())
	return res, nil
}

// Close останавливает фоновую очистку кэша.
func (c *Captioner) Close() {
	if c.cache != nil {
		c.cache.Stop()
	}
}

func (c *Captioner) cacheKey(img image.ProcessedImage) string {
	return c.client.Name() + "|" + c.prompt + "|" + img.Digest
}
