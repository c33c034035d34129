package models

import (
	"fmt"
	"sort"
	"time"
)

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
}

// SourceID identifies the originating file and page.
func (c Chunk) SourceID() string {
	return fmt.Sprintf("%s:%d", c.Source, c.PageNumber)
}

// Less orders chunks by source, page and position within the page.
func (c Chunk) Less(o Chunk) bool {
	if c.Source != o.Source {
		return c.Source < o.Source
	}
	if c.PageNumber != o.PageNumber {
		return c.PageNumber < o.PageNumber
	}
	return c.ChunkIndex < o.ChunkIndex
}

type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// ScoredChunk is a chunk returned by a similarity search.
type ScoredChunk struct {
	Chunk
	Similarity float32 `json:"similarity"`
}

// Answer is the outcome of one retrieval-QA call. Sources are in retrieval-rank order.
type Answer struct {
	Query   string        `json:"query"`
	Result  string        `json:"result"`
	Sources []ScoredChunk `json:"sources"`
	Prompt  string        `json:"-"`
}

// Manifest tags a persisted index with the embedder that produced it.
type Manifest struct {
	SchemaVersion    int       `yaml:"schema_version" json:"schema_version"`
	EmbedderProvider string    `yaml:"embedder_provider" json:"embedder_provider"`
	EmbedderModel    string    `yaml:"embedder_model" json:"embedder_model"`
	Dimension        int       `yaml:"dimension" json:"dimension"`
	ChunkCount       int       `yaml:"chunk_count" json:"chunk_count"`
	ChunkSize        int       `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap     int       `yaml:"chunk_overlap" json:"chunk_overlap"`
	ChunkUnit        string    `yaml:"chunk_unit" json:"chunk_unit"`
	CreatedAt        time.Time `yaml:"created_at" json:"created_at"`
}

// SameEmbedder reports whether m and o were produced by the same embedding model.
func (m Manifest) SameEmbedder(o Manifest) bool {
	return m.EmbedderProvider == o.EmbedderProvider && m.EmbedderModel == o.EmbedderModel
}

// RankChunks orders results by descending similarity. Equal similarities are
// ordered by source, page and chunk index so rankings are reproducible.
func RankChunks(results []ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Chunk.Less(results[j].Chunk)
	})
}
