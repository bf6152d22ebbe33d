package index

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

type fileConfig struct {
	Path string `json:"path"`
}

// fileSource reads one JSON chunk record per line.
type fileSource struct {
	path string
}

func init() {
	Register("file", createFileSource)
}

func createFileSource(args interface{}) (Source, error) {
	cfg := &fileConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("index path is required: %w", appErr.ErrConfiguration)
	}
	return &fileSource{path: cfg.Path}, nil
}

func (s *fileSource) Load(ctx context.Context) ([]model.Chunk, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("index file %s missing: %w", s.path, appErr.ErrConfiguration)
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var chunks []model.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var c model.Chunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode index line %d: %w", line, err)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}
	logutil.GetLogger(ctx).Info("index file loaded", zap.String("path", s.path), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// WriteFile stores chunks in the format fileSource reads.
func WriteFile(path string, chunks []model.Chunk) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		c.Score = 0
		if err := enc.Encode(c); err != nil {
			f.Close()
			return fmt.Errorf("encode chunk: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
