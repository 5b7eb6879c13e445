package icons

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestFileStoreUploadWritesAndDedupes(t *testing.T) {
	root := filepath.Join(t.TempDir(), "icons", "sha256")
	s := NewFileStore(root)
	ctx := context.Background()

	ref, err := s.Upload(ctx, pngHeader)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(ref, RefPrefix) {
		t.Fatalf("unexpected ref %q", ref)
	}
	again, err := s.Upload(ctx, pngHeader)
	if err != nil {
		t.Fatalf("second Upload() error = %v", err)
	}
	if again != ref {
		t.Fatalf("expected identical ref for identical content, got %q and %q", ref, again)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one stored file, got %d", len(entries))
	}

	content, ct, err := s.Download(ctx, ref)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if !bytes.Equal(content, pngHeader) || ct != "image/png" {
		t.Fatalf("unexpected download content type %q", ct)
	}
}

func TestFileStoreUploadRejectsNonImages(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	for name, content := range map[string][]byte{
		"empty": nil,
		"text":  []byte("hello world"),
		"html":  []byte("<html><body>x</body></html>"),
		"large": append(append([]byte{}, pngHeader...), make([]byte, MaxBytes)...),
	} {
		if _, err := s.Upload(ctx, content); !errors.Is(err, ErrInvalidIcon) {
			t.Fatalf("%s: expected ErrInvalidIcon, got %v", name, err)
		}
	}
}

func TestFileStoreAcceptsSVG(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ref, err := s.Upload(context.Background(), []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	_, ct, err := s.Download(context.Background(), ref)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if ct != "image/svg+xml" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestFileStoreDelete(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	ref, err := s.Upload(ctx, pngHeader)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, _, err := s.Download(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := s.Delete(ctx, "sha256:../../etc/passwd"); !errors.Is(err, ErrInvalidIcon) {
		t.Fatalf("expected ErrInvalidIcon for malformed ref, got %v", err)
	}
}
