package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/ai"
	"github.com/xxxsen/newsdesk/internal/docstore"
	"github.com/xxxsen/newsdesk/internal/index"
	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

// Sink receives the chunks of one source at a time.
type Sink interface {
	Write(ctx context.Context, sourceID string, chunks []model.Chunk) error
	Close() error
}

type Options struct {
	ChunkSize int
	Overlap   int
	// Delay between documents, to stay under provider rate limits.
	Delay time.Duration
}

type Stats struct {
	Documents int
	Chunks    int
	Skipped   int
}

type Builder struct {
	embedder ai.IEmbedder
	sink     Sink
	opts     Options
}

func NewBuilder(embedder ai.IEmbedder, sink Sink, opts Options) *Builder {
	return &Builder{embedder: embedder, sink: sink, opts: opts.normalized()}
}

func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap < 0 || o.Overlap >= o.ChunkSize {
		o.Overlap = min(DefaultOverlap, o.ChunkSize-1)
	}
	return o
}

// Build embeds every regular file under dir. Source ids are paths
// relative to dir with forward slashes, matching the local document store.
func (b *Builder) Build(ctx context.Context, dir string) (*Stats, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("dir", dir), zap.String("model", b.embedder.ModelName()))
	names, err := listDocuments(dir)
	if err != nil {
		return nil, err
	}
	stats := &Stats{}
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if i > 0 && b.opts.Delay > 0 {
			time.Sleep(b.opts.Delay)
		}
		raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return stats, fmt.Errorf("read %s: %w", name, err)
		}
		chunks, err := b.embedDocument(ctx, name, string(raw))
		if err != nil {
			return stats, err
		}
		if len(chunks) == 0 {
			logger.Info("document has no indexable text", zap.String("source", name))
			stats.Skipped++
			continue
		}
		if err := b.sink.Write(ctx, name, chunks); err != nil {
			return stats, fmt.Errorf("write chunks of %s: %w", name, err)
		}
		stats.Documents++
		stats.Chunks += len(chunks)
		logger.Debug("document indexed", zap.String("source", name), zap.Int("chunks", len(chunks)))
	}
	if err := b.sink.Close(); err != nil {
		return stats, err
	}
	logger.Info("index built",
		zap.Int("documents", stats.Documents),
		zap.Int("chunks", stats.Chunks),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

func (b *Builder) embedDocument(ctx context.Context, name, raw string) ([]model.Chunk, error) {
	texts, err := ChunkTexts(docstore.ExtractText(name, raw), b.opts.ChunkSize, b.opts.Overlap)
	if err != nil {
		return nil, err
	}
	out := make([]model.Chunk, 0, len(texts))
	for i, text := range texts {
		vec, err := b.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of %s: %w", i, name, err)
		}
		out = append(out, model.Chunk{SourceID: name, ChunkIndex: i, Vector: index.Normalize(vec)})
	}
	return out, nil
}

func listDocuments(dir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// ChunkText rebuilds the text of a single chunk from its source document.
func ChunkText(ctx context.Context, store docstore.Store, sourceID string, chunkIndex int, opts Options) (string, error) {
	raw, err := store.Read(ctx, sourceID)
	if err != nil {
		return "", err
	}
	opts = opts.normalized()
	texts, err := ChunkTexts(docstore.ExtractText(sourceID, raw), opts.ChunkSize, opts.Overlap)
	if err != nil {
		return "", err
	}
	if chunkIndex < 0 || chunkIndex >= len(texts) {
		return "", fmt.Errorf("chunk %d of %s: %w", chunkIndex, sourceID, appErr.ErrNotFound)
	}
	return texts[chunkIndex], nil
}
