package image

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"emperror.dev/errors"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	defaultSize    = 384
	defaultQuality = 90
	// MaxPixels предел размера исходной картинки; заголовок проверяется до декодирования.
	MaxPixels = 50_000_000
)

// ErrInvalidImage картинка читается, но непригодна для модели.
var ErrInvalidImage = errors.Sentinel("invalid image")

// Имена подготовленных файлов: <исходное имя>_<формат>_<8 hex>.jpg
var processedName = regexp.MustCompile(`^.+_(jpeg|png|gif|webp)_[0-9a-f]{8}\.jpg$`)

// IsProcessedName сообщает, что файл с таким именем мог создать только Processor.
func IsProcessedName(name string) bool {
	return processedName.MatchString(name)
}

// ProcessedImage результат подготовки картинки для модели. На диск сам не пишется, см. Save.
type ProcessedImage struct {
	Source    string // Исходный путь, как его ввёл пользователь
	Name      string // Имя файла для Save
	Data      []byte // Подготовленный JPEG
	Width     int
	Height    int
	SizeBytes int
	MimeType  string
	Digest    string // SHA-256 исходного файла
}

// DataURL возвращает картинку в виде data URL для облачных моделей.
func (p ProcessedImage) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MimeType, base64.StdEncoding.EncodeToString(p.Data))
}

// Save записывает JPEG в dir и возвращает полный путь. Нужен бэкендам, которые читают файл.
func (p ProcessedImage) Save(dir string) (string, error) {
	if p.Name == "" {
		return "", errors.New("processed image has no name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create dir %s", dir)
	}
	path := filepath.Join(dir, p.Name)
	if err := os.WriteFile(path, p.Data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write processed image %s", path)
	}
	return path, nil
}

// Processor приводит картинку к виду, который ожидает модель: RGB, квадрат фиксированной стороны, JPEG.
type Processor struct {
	size    int
	quality int
}

// NewProcessor создаёт обработчик. Нулевые size и quality заменяются значениями по умолчанию.
func NewProcessor(size int, quality int) *Processor {
	if size <= 0 {
		size = defaultSize
	}
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}
	return &Processor{size: size, quality: quality}
}

// Process читает картинку по пути и масштабирует её в памяти.
// Для отсутствующего файла ошибка удовлетворяет errors.Is(err, fs.ErrNotExist).
func (p *Processor) Process(path string) (ProcessedImage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ProcessedImage{}, errors.Wrapf(err, "read image %s", path)
	}

	header, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return ProcessedImage{}, errors.Wrapf(err, "decode image %s", path)
	}
	if header.Width <= 0 || header.Height <= 0 {
		return ProcessedImage{}, errors.WithDetails(ErrInvalidImage, "width", header.Width, "height", header.Height)
	}
	if int64(header.Width)*int64(header.Height) > MaxPixels {
		return ProcessedImage{}, errors.WithDetails(errors.WithMessage(ErrInvalidImage, "image too large"),
			"width", header.Width, "height", header.Height, "maxPixels", MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return ProcessedImage{}, errors.Wrapf(err, "decode image %s", path)
	}

	encoded, err := encodeJPEG(resizeRGB(img, p.size, p.size), p.quality)
	if err != nil {
		return ProcessedImage{}, errors.Wrap(err, "encode jpeg")
	}

	sum := sha256.Sum256(raw)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ProcessedImage{
		Source:    path,
		Name:      fmt.Sprintf("%s_%s_%s.jpg", base, format, uuid.NewString()[:8]),
		Data:      encoded,
		Width:     p.size,
		Height:    p.size,
		SizeBytes: len(encoded),
		MimeType:  "image/jpeg",
		Digest:    hex.EncodeToString(sum[:]),
	}, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// resizeRGB масштабирует картинку фильтром Catmull-Rom на непрозрачный белый фон,
// так что прозрачность убирается.
func resizeRGB(src image.Image, width int, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}
