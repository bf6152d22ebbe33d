package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/newsdesk/internal/model"
	"github.com/xxxsen/newsdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

const (
	chunkTable    = "chunk_embeddings"
	chunkPageSize = 1000
)

type ChunkRepo struct {
	db *sqlx.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: sqlx.NewDb(db, "postgres")}
}

type chunkRow struct {
	Source     string          `db:"source"`
	ChunkIndex int             `db:"chunk_index"`
	Embedding  pgvector.Vector `db:"embedding"`
}

// ListAll returns every stored chunk in insertion order, reading the
// table page by page.
func (r *ChunkRepo) ListAll(ctx context.Context) ([]model.Chunk, error) {
	var out []model.Chunk
	for offset := uint(0); ; offset += chunkPageSize {
		sqlStr, args, err := buildChunkPage(offset, chunkPageSize)
		if err != nil {
			return nil, err
		}
		var rows []chunkRow
		if err := r.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, model.Chunk{
				SourceID:   row.Source,
				ChunkIndex: row.ChunkIndex,
				Vector:     row.Embedding.Slice(),
			})
		}
		if len(rows) < chunkPageSize {
			return out, nil
		}
	}
}

func buildChunkPage(offset, limit uint) (string, []interface{}, error) {
	where := map[string]interface{}{
		"_orderby": "id asc",
		"_limit":   []uint{offset, limit},
	}
	sqlStr, args, err := builder.BuildSelect(chunkTable, where, []string{"source", "chunk_index", "embedding"})
	if err != nil {
		return "", nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return sqlStr, args, nil
}

// ReplaceSource swaps all chunks of one source in a single transaction.
func (r *ChunkRepo) ReplaceSource(ctx context.Context, sourceID string, chunks []model.Chunk) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	sqlStr, args, err := builder.BuildDelete(chunkTable, map[string]interface{}{"source": sourceID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", sourceID, err)
	}
	if len(chunks) > 0 {
		data := make([]map[string]interface{}, 0, len(chunks))
		for _, c := range chunks {
			data = append(data, map[string]interface{}{
				"source":      sourceID,
				"chunk_index": c.ChunkIndex,
				"embedding":   pgvector.NewVector(c.Vector),
			})
		}
		sqlStr, args, err = builder.BuildInsert(chunkTable, data)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return insertError(sourceID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return insertError(sourceID, err)
	}
	return nil
}

// insertError maps unique violations on (source, chunk_index) to
// ErrConflict.
func insertError(sourceID string, err error) error {
	if dbutil.IsConflict(err) {
		return fmt.Errorf("chunks of %s: %w", sourceID, appErr.ErrConflict)
	}
	return fmt.Errorf("insert chunks of %s: %w", sourceID, err)
}
