package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/removin/removin/internal/filehandler"
)

// LocalImage is one image selected for batch processing. Each image gets a
// stable ID used in storage object keys and result maps.
type LocalImage struct {
	ID   string
	Path string
	Name string
	Size int64
	MIME string

	previewOnce sync.Once
	previewPath string
	previewErr  error

	releaseOnce sync.Once
}

// NewLocalImage describes the file at path. The file is not read yet;
// validation and reading happen during processing.
func NewLocalImage(path string) (*LocalImage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	name := filepath.Base(path)
	// Unsupported extensions leave MIME empty; validation rejects the file
	// during processing.
	mime, _ := filehandler.MIMEType(filepath.Ext(name))
	return &LocalImage{
		ID:   uuid.NewString(),
		Path: path,
		Name: name,
		Size: info.Size(),
		MIME: mime,
	}, nil
}

// Preview returns the path of a temporary snapshot copy. Processing uploads
// from it so an original still being written stays consistent, and UIs can
// display it while the original is locked. The copy is made once; call
// Release when done with it.
func (img *LocalImage) Preview() (string, error) {
	img.previewOnce.Do(func() {
		tmp, err := os.CreateTemp("", "removin-preview-*"+filepath.Ext(img.Name))
		if err != nil {
			img.previewErr = fmt.Errorf("failed to create preview: %w", err)
			return
		}
		defer tmp.Close()

		src, err := os.Open(img.Path)
		if err != nil {
			os.Remove(tmp.Name())
			img.previewErr = fmt.Errorf("failed to open %s: %w", img.Path, err)
			return
		}
		defer src.Close()

		if _, err := io.Copy(tmp, src); err != nil {
			os.Remove(tmp.Name())
			img.previewErr = fmt.Errorf("failed to copy preview: %w", err)
			return
		}
		img.previewPath = tmp.Name()
	})
	return img.previewPath, img.previewErr
}

// Release removes the preview copy. Safe to call multiple times and
// without a prior Preview call.
func (img *LocalImage) Release() {
	img.releaseOnce.Do(func() {
		if img.previewPath != "" {
			os.Remove(img.previewPath)
		}
	})
}
