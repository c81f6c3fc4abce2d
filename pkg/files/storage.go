package files

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Attachment is the metadata kept on the post document. The bytes
// themselves live on disk under the storage root.
type Attachment struct {
	Filename    string `json:"filename"`
	StoragePath string `json:"storagePath"`
	MimeType    string `json:"mimeType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type Storage struct {
	root string
}

func NewStorage(root string) (*Storage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("files: can't create storage root %s: %w", root, err)
	}
	return &Storage{root: root}, nil
}

// Save streams one uploaded part to disk under a generated name and
// returns the metadata to embed into the post.
func (s *Storage) Save(fh *multipart.FileHeader) (Attachment, error) {
	src, err := fh.Open()
	if err != nil {
		return Attachment{}, fmt.Errorf("files: can't open uploaded file %s: %w", fh.Filename, err)
	}
	defer src.Close()

	name := uuid.NewString() + filepath.Ext(fh.Filename)
	dst, err := os.Create(filepath.Join(s.root, name))
	if err != nil {
		return Attachment{}, fmt.Errorf("files: can't create %s: %w", name, err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(dst.Name())
		return Attachment{}, fmt.Errorf("files: failed writing %s: %w", name, err)
	}

	return Attachment{
		Filename:    fh.Filename,
		StoragePath: "/uploads/" + name,
		MimeType:    fh.Header.Get("Content-Type"),
		SizeBytes:   written,
	}, nil
}

// Remove deletes stored bytes for attachments whose post failed to
// persist. Best effort: the caller already reports the original error.
func (s *Storage) Remove(atts ...Attachment) {
	for _, a := range atts {
		os.Remove(filepath.Join(s.root, filepath.Base(a.StoragePath)))
	}
}

func (s *Storage) Root() string {
	return s.root
}
