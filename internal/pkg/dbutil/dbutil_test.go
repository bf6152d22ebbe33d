package dbutil

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalizeRebindsPlaceholders(t *testing.T) {
	q, args := Finalize("SELECT source FROM chunk_embeddings WHERE source=? AND chunk_index=?", []interface{}{"a", 1})
	require.Equal(t, "SELECT source FROM chunk_embeddings WHERE source=$1 AND chunk_index=$2", q)
	require.Equal(t, []interface{}{"a", 1}, args)
}

func TestFinalizeRewritesLimit(t *testing.T) {
	q, args := Finalize("SELECT * FROM t WHERE a=? LIMIT ?,?", []interface{}{"x", 20, 10})
	require.Equal(t, "SELECT * FROM t WHERE a=$1 LIMIT $2 OFFSET $3", q)
	require.Equal(t, []interface{}{"x", 10, 20}, args)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	require.False(t, IsConflict(&pq.Error{Code: "42P01"}))
	require.False(t, IsConflict(nil))
}
