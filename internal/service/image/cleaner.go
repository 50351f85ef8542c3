package image

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"emperror.dev/errors"
	"go.uber.org/zap"
)

// Cleaner убирает из рабочей папки подготовленные картинки, пережившие TTL.
// Удаляются только файлы с именами, которые выдаёт Processor; чужие JPEG в той же папке не трогаются.
type Cleaner struct {
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewCleaner(logger *zap.SugaredLogger) *Cleaner {
	return &Cleaner{logger: logger, now: time.Now}
}

// Clean возвращает число удалённых файлов. В режиме debug ничего не удаляет.
func (c *Cleaner) Clean(dir string, ttl time.Duration, debug bool) int {
	if debug {
		c.logger.Debugw("Processed image cleanup disabled in debug mode", "dir", dir)
		return 0
	}
	if ttl <= 0 || dir == "" {
		return 0
	}

	stale, err := c.stale(dir, c.now().Add(-ttl))
	if err != nil {
		c.logger.Warnw("Не удалось просмотреть рабочую папку", "dir", dir, "error", err)
		return 0
	}

	removed := 0
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warnw("Не удалось удалить подготовленную картинку", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		c.logger.Debugw("Processed images removed", "dir", dir, "removed", removed, "ttl", ttl.String())
	}
	return removed
}

// stale собирает подготовленные картинки, изменённые раньше deadline.
func (c *Cleaner) stale(dir string, deadline time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read dir %s", dir)
	}

	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !IsProcessedName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // файл мог исчезнуть между ReadDir и Info
		}
		if info.ModTime().Before(deadline) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
