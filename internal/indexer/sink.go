package indexer

import (
	"context"
	"os"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/index"
	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

type fileSink struct {
	path   string
	chunks []model.Chunk
}

// NewFileSink collects chunks and writes them as one JSONL index file on
// Close. The file is replaced atomically.
func NewFileSink(path string) Sink {
	return &fileSink{path: path}
}

func (s *fileSink) Write(ctx context.Context, sourceID string, chunks []model.Chunk) error {
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *fileSink) Close() error {
	tmp := s.path + ".tmp"
	if err := index.WriteFile(tmp, s.chunks); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

type ChunkWriter interface {
	ReplaceSource(ctx context.Context, sourceID string, chunks []model.Chunk) error
}

type repoSink struct {
	repo ChunkWriter
}

// NewRepoSink replaces the stored chunks of each source as it is indexed.
// A conflict means another indexer wrote the same source concurrently; the
// replace is tried once more so the last writer wins.
func NewRepoSink(repo ChunkWriter) Sink {
	return &repoSink{repo: repo}
}

func (s *repoSink) Write(ctx context.Context, sourceID string, chunks []model.Chunk) error {
	err := s.repo.ReplaceSource(ctx, sourceID, chunks)
	if !appErr.IsConflict(err) {
		return err
	}
	logutil.GetLogger(ctx).Warn("chunks changed concurrently, replacing again",
		zap.String("source", sourceID),
		zap.Error(err),
	)
	return s.repo.ReplaceSource(ctx, sourceID, chunks)
}

func (s *repoSink) Close() error {
	return nil
}
