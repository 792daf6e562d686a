package api

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// BlobStore keeps uploaded file contents.
type BlobStore interface {
	// Put stores r under a unique name derived from original and returns
	// that name and the byte count.
	Put(original string, r io.Reader) (string, int64, error)
	Delete(name string) error
}

// LocalBlobStore writes files flat into Root.
type LocalBlobStore struct {
	Root string
}

func (s *LocalBlobStore) Put(original string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return "", 0, err
	}
	name := ulid.Make().String() + "-" + safeName(original)
	f, err := os.Create(filepath.Join(s.Root, name))
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, err
	}
	return name, n, nil
}

func (s *LocalBlobStore) Delete(name string) error {
	return os.Remove(filepath.Join(s.Root, filepath.Base(name)))
}

func safeName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}
