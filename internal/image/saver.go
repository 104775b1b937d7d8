package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/manash/chronosnap/internal/security"
	"github.com/manash/chronosnap/pkg/models"
)

type Saver struct {
	now func() time.Time
}

func NewSaver() *Saver {
	return &Saver{now: time.Now}
}

func (s *Saver) Save(ctx context.Context, img models.ImagePayload, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(img.Data) == 0 {
		return fmt.Errorf("no image data available")
	}

	if err := s.ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, img.Data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// SaveResult writes a generated result into dir under its download name and
// returns the path.
func (s *Saver) SaveResult(ctx context.Context, img models.ImagePayload, dir, eraID string) (string, error) {
	path := filepath.Join(dir, DownloadFilename(eraID, s.now()))
	if err := s.Save(ctx, img, path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// DownloadFilename names a result the way the booth offers it for download.
func DownloadFilename(eraID string, t time.Time) string {
	if eraID == "" {
		eraID = "result"
	}
	return fmt.Sprintf("chronosnap-%s-%d.png", security.SanitizeFilename(eraID), t.UnixMilli())
}
