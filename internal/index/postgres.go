package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
	"github.com/xxxsen/newsdesk/internal/repo"
)

type PostgresArgs struct {
	DB *sql.DB
}

type postgresSource struct {
	repo *repo.ChunkRepo
}

func init() {
	Register("postgres", createPostgresSource)
}

func createPostgresSource(args interface{}) (Source, error) {
	pa, ok := args.(PostgresArgs)
	if !ok || pa.DB == nil {
		return nil, fmt.Errorf("postgres index requires a database handle: %w", appErr.ErrConfiguration)
	}
	return &postgresSource{repo: repo.NewChunkRepo(pa.DB)}, nil
}

func (s *postgresSource) Load(ctx context.Context) ([]model.Chunk, error) {
	return s.repo.ListAll(ctx)
}
