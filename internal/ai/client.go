package ai

import (
	"context"

	"ImageCaptioner/internal/service/image"
)

// Client интерфейс для получения подписи к картинке. Все реализации должны быть взаимозаменяемыми.
type Client interface {
	// SendRequest отправляет текст и подготовленную картинку модели и возвращает ответ.
	SendRequest(ctx context.Context, text string, img image.ProcessedImage) (string, error)
	// Name короткое имя бэкенда для логов и вывода.
	Name() string
}
