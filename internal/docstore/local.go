package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

type localConfig struct {
	Dir string `json:"dir"`
}

type localStore struct {
	dir string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	return NewLocal(config.Dir), nil
}

func NewLocal(dir string) Store {
	return &localStore{dir: dir}
}

func (s *localStore) Read(ctx context.Context, sourceID string) (string, error) {
	_ = ctx
	if sourceID == "" || strings.Contains(sourceID, "..") || filepath.IsAbs(sourceID) {
		return "", fmt.Errorf("invalid source id %q: %w", sourceID, appErr.ErrInvalid)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(sourceID)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("document %s: %w", sourceID, appErr.ErrNotFound)
		}
		return "", err
	}
	return string(data), nil
}
