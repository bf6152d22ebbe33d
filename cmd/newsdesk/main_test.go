package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/newsdesk/internal/config"
	"github.com/xxxsen/newsdesk/internal/index"
	"github.com/xxxsen/newsdesk/internal/job"
	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
	"github.com/xxxsen/newsdesk/internal/refine"
	"github.com/xxxsen/newsdesk/internal/schedule"
)

func TestIndexTarget(t *testing.T) {
	cfg := &config.Config{
		Index:   config.IndexConfig{Type: "file", Data: map[string]interface{}{"path": "data/index.jsonl"}},
		Indexer: config.IndexerConfig{DocsDir: "data/raw"},
	}
	f := &indexFlags{}
	dir, pg, err := indexTarget(cfg, f)
	require.NoError(t, err)
	require.Equal(t, "data/raw", dir)
	require.False(t, pg)
	require.Equal(t, "data/index.jsonl", f.out)

	_, _, err = indexTarget(cfg, &indexFlags{postgres: true})
	require.Error(t, err)

	cfg.Database.DSN = "postgres://localhost/newsdesk"
	cfg.Index = config.IndexConfig{Type: "postgres"}
	_, pg, err = indexTarget(cfg, &indexFlags{dir: "other"})
	require.NoError(t, err)
	require.True(t, pg)

	_, _, err = indexTarget(&config.Config{}, &indexFlags{})
	require.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	score := 8.3
	var buf bytes.Buffer
	printResult(&buf, &refine.Result{
		RequestID:   "r1",
		Draft:       "[title] Tides",
		Comments:    model.Comments{Strengths: "clear"},
		Score:       &score,
		Iterations:  2,
		Sources:     []string{"a.txt", "b.txt"},
		Citations:   []string{"a.txt"},
		Interrupted: errors.New("quota"),
	})
	out := buf.String()
	require.Contains(t, out, "[title] Tides\n")
	require.Contains(t, out, "2 iteration(s), score 8.3/10, approved false")
	require.Contains(t, out, "strengths: clear")
	require.NotContains(t, out, "improvements:")
	require.Contains(t, out, "sources: a.txt, b.txt")
	require.Contains(t, out, "cited: a.txt")
	require.Contains(t, out, "stopped early: quota")
}

func TestPrintSourceChunks(t *testing.T) {
	idx, err := index.New([]model.Chunk{
		{SourceID: "a.html", ChunkIndex: 0, Vector: []float32{1, 0}},
		{SourceID: "b.md", ChunkIndex: 0, Vector: []float32{0, 1}},
		{SourceID: "a.html", ChunkIndex: 1, Vector: []float32{1, 1}},
	}, index.Options{})
	require.NoError(t, err)
	defer idx.Close()

	var buf bytes.Buffer
	require.NoError(t, printSourceChunks(&buf, idx, "a.html"))
	require.Equal(t, "a.html\t0\na.html\t1\n", buf.String())

	err = printSourceChunks(&buf, idx, "missing.txt")
	require.True(t, appErr.IsNotFound(err))
}

func TestLogNextRunsSkipsUnscheduledJobs(t *testing.T) {
	sched := schedule.NewCronScheduler()
	require.NoError(t, sched.AddJob(job.NewEmbeddingCacheCleanupJob(nil, 0), "@every 1h"))
	sched.Start(context.Background())
	defer sched.Stop()

	next, ok := sched.Next(job.EmbeddingCacheCleanupJobName)
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(time.Hour), next, time.Minute)
	_, ok = sched.Next(job.IndexRebuildJobName)
	require.False(t, ok)
	logNextRuns(context.Background(), sched, job.IndexRebuildJobName, job.EmbeddingCacheCleanupJobName)
}
