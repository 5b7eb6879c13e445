// Package icons stores button icons as content-addressed files.
package icons

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	RefPrefix = "sha256:"
	MaxBytes  = 1 << 20
)

var (
	ErrNotFound    = errors.New("icon not found")
	ErrInvalidIcon = errors.New("invalid icon")

	hashHexPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// Store is the icon storage capability used by the API.
type Store interface {
	Upload(ctx context.Context, content []byte) (string, error)
	Download(ctx context.Context, ref string) ([]byte, string, error)
	Delete(ctx context.Context, ref string) error
}

type FileStore struct {
	root string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) Path(hashHex string) string {
	return filepath.Join(s.root, hashHex)
}

// Upload validates content as an image and stores it under its sha256. It
// returns the icon reference, identical for identical content.
func (s *FileStore) Upload(ctx context.Context, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty content", ErrInvalidIcon)
	}
	if len(content) > MaxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidIcon, len(content), MaxBytes)
	}
	if ct := DetectContentType(content); !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("%w: content type %s", ErrInvalidIcon, ct)
	}

	sum := sha256.Sum256(content)
	hashHex := hex.EncodeToString(sum[:])
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("create icon directory %s: %w", s.root, err)
	}

	dst := s.Path(hashHex)
	if _, err := os.Stat(dst); err == nil {
		return RefPrefix + hashHex, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat icon %s: %w", dst, err)
	}

	tmp, err := os.CreateTemp(s.root, hashHex+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp icon file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write temp icon file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close temp icon file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(dst); statErr == nil {
			return RefPrefix + hashHex, nil
		}
		return "", fmt.Errorf("finalize icon %s: %w", dst, err)
	}
	return RefPrefix + hashHex, nil
}

func (s *FileStore) Download(ctx context.Context, ref string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	hashHex, err := ParseRef(ref)
	if err != nil {
		return nil, "", err
	}
	content, err := os.ReadFile(s.Path(hashHex))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return nil, "", fmt.Errorf("read icon %s: %w", ref, err)
	}
	return content, DetectContentType(content), nil
}

func (s *FileStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hashHex, err := ParseRef(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(s.Path(hashHex)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return fmt.Errorf("delete icon %s: %w", ref, err)
	}
	return nil
}

func ParseRef(ref string) (string, error) {
	hashHex, ok := strings.CutPrefix(strings.TrimSpace(ref), RefPrefix)
	if !ok || !hashHexPattern.MatchString(hashHex) {
		return "", fmt.Errorf("%w: reference %q", ErrInvalidIcon, ref)
	}
	return hashHex, nil
}

// DetectContentType sniffs content, recognizing SVG documents that the
// standard sniffer reports as text.
func DetectContentType(content []byte) string {
	ct := http.DetectContentType(content)
	if strings.HasPrefix(ct, "text/xml") || strings.HasPrefix(ct, "text/plain") {
		head := content
		if len(head) > 512 {
			head = head[:512]
		}
		if strings.Contains(strings.ToLower(string(head)), "<svg") {
			return "image/svg+xml"
		}
	}
	return ct
}
