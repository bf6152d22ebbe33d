package job

import (
	"context"

	"github.com/xxxsen/newsdesk/internal/ai"
	"github.com/xxxsen/newsdesk/internal/indexer"
)

const IndexRebuildJobName = "index_rebuild"

type SinkFactory func() (indexer.Sink, error)

// IndexRebuildJob re-embeds the document directory into a fresh sink.
type IndexRebuildJob struct {
	embedder ai.IEmbedder
	newSink  SinkFactory
	dir      string
	opts     indexer.Options
}

func NewIndexRebuildJob(embedder ai.IEmbedder, newSink SinkFactory, dir string, opts indexer.Options) *IndexRebuildJob {
	return &IndexRebuildJob{embedder: embedder, newSink: newSink, dir: dir, opts: opts}
}

func (j *IndexRebuildJob) Name() string {
	return IndexRebuildJobName
}

func (j *IndexRebuildJob) Run(ctx context.Context) error {
	sink, err := j.newSink()
	if err != nil {
		return err
	}
	_, err = indexer.NewBuilder(j.embedder, sink, j.opts).Build(ctx, j.dir)
	return err
}
