// Package blob is the binary object collaborator: it stores uploaded bytes
// and hands back a URL they can be fetched from.
package blob

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
)

type Store interface {
	Upload(ctx context.Context, data []byte, name string) (string, error)
}

const imagePrefix = "images/"

// FS writes blobs under Dir and serves them from PublicURL.
type FS struct {
	Dir       string
	PublicURL string
	MaxBytes  int64
}

func NewFS(dir, publicURL string, maxBytes int64) *FS {
	return &FS{Dir: dir, PublicURL: strings.TrimSuffix(publicURL, "/"), MaxBytes: maxBytes}
}

// Upload stores data at name and returns its URL. Names under "images/"
// must hold a decodable image.
func (s *FS) Upload(ctx context.Context, data []byte, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Transport("upload cancelled", err)
	}

	name = path.Clean("/" + name)[1:]
	if name == "" || name == "." {
		return "", apperr.Validation("blob name is required")
	}
	if len(data) == 0 {
		return "", apperr.Validation("file is empty")
	}
	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return "", apperr.Validation("file is too large")
	}
	if strings.HasPrefix(name, imagePrefix) {
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return "", apperr.Wrap(apperr.CodeValidation, "file is not a supported image", err)
		}
	}

	if err := s.write(filepath.Join(s.Dir, filepath.FromSlash(name)), data); err != nil {
		return "", apperr.Transport("upload failed", err)
	}
	return s.PublicURL + "/" + name, nil
}

// write goes through a temp file in the same directory so readers never
// see a partial blob.
func (s *FS) write(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "blob.write.MkdirAll")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return errors.Wrap(err, "blob.write.CreateTemp")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "blob.write.Write")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "blob.write.Close")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "blob.write.Chmod")
	}
	return errors.Wrap(os.Rename(tmp.Name(), dst), "blob.write.Rename")
}
