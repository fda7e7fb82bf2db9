package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir(), 0, zerolog.Nop())
	require.NoError(t, s.Load("haunting"))
	return s
}

func TestClueInsertionIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpdateGlobalContext(Update{NewClues: []string{"bloody knife"}}))
	require.NoError(t, s.UpdateGlobalContext(Update{NewClues: []string{"bloody knife", "torn diary"}}))

	assert.Equal(t, []string{"bloody knife", "torn diary"}, s.Snapshot().KeyClues)
}

func TestSummaryAppendsWithDelimiter(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpdateGlobalContext(Update{Summary: "The party entered the house."}))
	assert.Equal(t, "The party entered the house.", s.Snapshot().Summary)

	require.NoError(t, s.UpdateGlobalContext(Update{Summary: "A body was found."}))
	assert.Equal(t, "The party entered the house.\n\n[UPDATE]: A body was found.", s.Snapshot().Summary)
}

func TestBufferThresholdSignalsOnly(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < DefaultSummaryThreshold-1; i++ {
		require.NoError(t, s.AppendToBuffer("user", "line"))
	}
	assert.False(t, s.ShouldSummarize())

	require.NoError(t, s.AppendToBuffer("assistant", "another line"))
	assert.True(t, s.ShouldSummarize())

	assert.Contains(t, s.BufferContent(), "user: line")
	assert.Contains(t, s.BufferContent(), "assistant: another line")

	require.NoError(t, s.ClearBuffer())
	assert.False(t, s.ShouldSummarize())
	assert.Empty(t, s.BufferContent())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()

	// An old-format save: no short_term_buffer, no turn_count.
	old := `{"global_context": {"summary": "Something stirs.", "key_clues": ["a key"], "location_state": "Cellar"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy_memory.json"), []byte(old), 0o644))

	s := NewStore(dir, 0, zerolog.Nop())
	require.NoError(t, s.Load("legacy"))

	ctx := s.Snapshot()
	assert.Equal(t, "Something stirs.", ctx.Summary)
	assert.Equal(t, []string{"a key"}, ctx.KeyClues)
	assert.Equal(t, "Cellar", ctx.LocationState)
	assert.Zero(t, ctx.TurnCount)
	assert.Empty(t, s.BufferContent())

	// A mutation on the merged document must persist cleanly.
	require.NoError(t, s.AppendToBuffer("user", "hello"))
}

func TestWriteThroughPersistence(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 0, zerolog.Nop())
	require.NoError(t, s.Load("haunting"))

	require.NoError(t, s.UpdateGlobalContext(Update{Location: "Attic", NewClues: []string{"strange symbol"}}))

	// A second store reading the same file sees the mutation immediately.
	s2 := NewStore(dir, 0, zerolog.Nop())
	require.NoError(t, s2.Load("haunting"))
	assert.Equal(t, "Attic", s2.Snapshot().LocationState)
	assert.Equal(t, []string{"strange symbol"}, s2.Snapshot().KeyClues)

	// No temp file left behind.
	_, err := os.Stat(filepath.Join(dir, "haunting_memory.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestAdvanceTurnIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AdvanceTurn())
	require.NoError(t, s.AdvanceTurn())
	assert.Equal(t, 2, s.Snapshot().TurnCount)
}

func TestRenderContextBlock(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateGlobalContext(Update{
		Summary:  "The house is silent.",
		NewClues: []string{"bloody knife", "old photo"},
		Location: "Corbitt House",
	}))

	rendered := s.RenderContext()
	assert.Contains(t, rendered, "--- CURRENT SITUATION (GLOBAL MEMORY) ---")
	assert.Contains(t, rendered, "SUMMARY: The house is silent.")
	assert.Contains(t, rendered, "LOCATION: Corbitt House")
	assert.Contains(t, rendered, "KNOWN CLUES: bloody knife, old photo")
}

func TestPersistedDocumentShape(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 0, zerolog.Nop())
	require.NoError(t, s.Load("haunting"))
	require.NoError(t, s.AppendToBuffer("user", "I open the door"))

	raw, err := os.ReadFile(filepath.Join(dir, "haunting_memory.json"))
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "global_context")
	assert.Contains(t, doc, "short_term_buffer")
	assert.Contains(t, doc, "character_memories")
}
