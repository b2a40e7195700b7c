// Package filestore stores the uploaded report files.
package filestore

import (
	"context"
	"encoding/hex"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/trezcool/schoolstats/core"
)

// Version returns a short digest of content, appended to file URLs so that a replaced file is never served from cache.
func Version(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:6])
}

func cleanPath(p string) (string, error) {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return "", errors.Errorf("invalid path %q", p)
		}
	}
	return strings.Trim(path.Clean("/"+p), "/"), nil
}

// LocalStorage stores files on disk under root and serves them under baseURL.
type LocalStorage struct {
	root    string
	baseURL string
}

var _ core.FileStorage = (*LocalStorage)(nil) // interface compliance check

func NewLocalStorage(conf core.StorageConfig) *LocalStorage {
	return &LocalStorage{root: conf.Root, baseURL: strings.TrimSuffix(conf.BaseURL, "/")}
}

func (s *LocalStorage) Root() string { return s.root }

func (s *LocalStorage) Upload(ctx context.Context, att *core.Attachment, name, dir string) (core.FileUploaded, error) {
	if err := ctx.Err(); err != nil {
		return core.FileUploaded{}, err
	}
	dir, err := cleanPath(dir)
	if err != nil {
		return core.FileUploaded{}, err
	}
	fileName := name + att.Ext()
	if strings.ContainsAny(fileName, `/\`) || name == "" {
		return core.FileUploaded{}, errors.Errorf("invalid file name %q", fileName)
	}

	fullDir := filepath.Join(s.root, filepath.FromSlash(dir))
	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return core.FileUploaded{}, errors.Wrapf(err, "creating %s", dir)
	}
	if err := os.WriteFile(filepath.Join(fullDir, fileName), att.Content, 0o644); err != nil {
		return core.FileUploaded{}, errors.Wrapf(err, "writing %s", fileName)
	}

	rel := path.Join(dir, fileName)
	return core.FileUploaded{
		FileName: fileName,
		URL:      s.baseURL + "/" + rel + "?v=" + Version(att.Content),
		Path:     rel,
	}, nil
}
