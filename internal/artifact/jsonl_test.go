package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/stitchrag/internal/domain"
)

func TestChunksFile(t *testing.T) {
	dir := t.TempDir()
	path := ChunksPath(dir, "granny")
	assert.Equal(t, filepath.Join(dir, "chunks-granny.jsonl"), path)

	in := []ChunkRecord{
		{Book: "granny", ChunkIndex: 0, Chunk: "Chain 4."},
		{Book: "granny", ChunkIndex: 1, Chunk: "Join with a slip stitch.\nTurn."},
	}
	require.NoError(t, WriteJSONL(path, in))

	out, err := ReadJSONL[ChunkRecord](path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestEmbeddingRecord_NullImage(t *testing.T) {
	rec := EmbeddingRecord{Book: "b", Chunk: "c", Embedding: domain.Vector{1, 2}}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"image_embedding":null`)

	path := EmbeddingsPath(t.TempDir(), "b")
	require.NoError(t, WriteJSONL(path, []EmbeddingRecord{rec}))
	out, err := ReadJSONL[EmbeddingRecord](path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].ImageEmbedding)
	assert.Equal(t, domain.Vector{1, 2}, out[0].Embedding)
}

func TestReadJSONL_MalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks-x.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"book\":\"x\"}\n\n{oops\n"), 0644))

	_, err := ReadJSONL[ChunkRecord](path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":3:")
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "json_outputs", RetrievedFile)
	require.NoError(t, WriteJSON(path, Retrieved{Prompt: "q chunk"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Retrieved
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "q chunk", got.Prompt)
}
