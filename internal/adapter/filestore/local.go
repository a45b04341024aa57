package filestore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/neomorfeo/programflow/internal/domain"
)

// Compile-time check: Local implements domain.FileStore.
var _ domain.FileStore = (*Local)(nil)

// MaxFileSize is the upload size cap.
const MaxFileSize = 10 << 20 // 10MB

var allowedExtensions = map[domain.FileCategory]map[string]bool{
	domain.FileDocument: {
		".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	},
	domain.FileMedia: {
		".jpg": true, ".jpeg": true, ".png": true,
		".mp4": true, ".mov": true, ".avi": true, ".wmv": true, ".webm": true,
	},
}

// FileTypeError is returned when a filename's extension is not allowed
// for its category.
type FileTypeError struct {
	Filename string
	Category domain.FileCategory
}

func (e *FileTypeError) Error() string {
	return fmt.Sprintf("file %q is not an accepted %s type", e.Filename, e.Category)
}

// FileTooLargeError is returned when an upload exceeds MaxFileSize.
type FileTooLargeError struct {
	Size int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file size %d exceeds the %d byte limit", e.Size, MaxFileSize)
}

// Local is a disk-backed FileStore. Blobs land under root/<category>s/
// with a random id prefix; the returned URL is the path prefixed with
// baseURL, which is all the engine ever stores.
type Local struct {
	root    string
	baseURL string
}

// New creates a local file store rooted at dir.
func New(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating file store root: %w", err)
	}
	return &Local{root: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Save validates the filename and size for the category, writes the
// blob, and returns its reference.
func (l *Local) Save(_ context.Context, filename string, category domain.FileCategory, content io.Reader, size int64) (domain.FileRef, error) {
	if size > MaxFileSize {
		return domain.FileRef{}, &FileTooLargeError{Size: size}
	}

	allowed, ok := allowedExtensions[category]
	if !ok {
		return domain.FileRef{}, fmt.Errorf("unknown file category %q", category)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowed[ext] {
		return domain.FileRef{}, &FileTypeError{Filename: filename, Category: category}
	}

	fileID, err := randomID()
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("generating file id: %w", err)
	}

	dir := filepath.Join(l.root, string(category)+"s")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.FileRef{}, fmt.Errorf("creating category dir: %w", err)
	}

	name := fileID + "_" + filepath.Base(filename)
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("creating file: %w", err)
	}
	defer dst.Close()

	// LimitReader enforces the cap even when the declared size lied.
	written, err := io.Copy(dst, io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("writing file: %w", err)
	}
	if written > MaxFileSize {
		os.Remove(dst.Name())
		return domain.FileRef{}, &FileTooLargeError{Size: written}
	}

	return domain.FileRef{
		URL:    fmt.Sprintf("%s/%ss/%s", l.baseURL, category, name),
		FileID: fileID,
	}, nil
}

func randomID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
