package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type localStore struct {
	root      string
	publicURL string
}

// NewLocalStore 本地磁盘存储，开发环境与测试使用
func NewLocalStore(root, publicBase string) (BlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &localStore{root: root, publicURL: strings.TrimRight(publicBase, "/")}, nil
}

func (s *localStore) resolve(name string) (string, error) {
	clean := path.Clean("/" + name)
	if clean == "/" {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *localStore) PutNew(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	p, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	// O_EXCL 保证同名文件不会被覆盖
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrObjectExists
		}
		return err
	}

	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return err
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(p)
		return err
	}
	return nil
}

func (s *localStore) Delete(_ context.Context, name string) error {
	p, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *localStore) URL(name string) string {
	return s.publicURL + path.Clean("/"+name)
}
