package model

// Chunk is one embedded slice of a source document. Score is only
// meaningful on search results.
type Chunk struct {
	SourceID   string    `json:"source"`
	ChunkIndex int       `json:"chunk_index"`
	Vector     []float32 `json:"vector"`
	Score      float64   `json:"score,omitempty"`
}

// Article groups the matched chunks of a single source document.
type Article struct {
	SourceID string
	Chunks   []Chunk
	MaxScore float64
	AvgScore float64
}

type ContextDoc struct {
	SourceID string
	Text     string
}

// ContextSet is ordered by descending article MaxScore.
type ContextSet []ContextDoc

func (c ContextSet) SourceIDs() []string {
	ids := make([]string, 0, len(c))
	for _, doc := range c {
		ids = append(ids, doc.SourceID)
	}
	return ids
}
