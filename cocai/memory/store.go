// Package memory implements the tiered memory store a session feeds the
// generation backend from: a rolling summary, a de-duplicated clue set,
// the current location, and a short-term buffer awaiting condensation.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultSummaryThreshold is the buffer length at which condensation is
// signalled.
const DefaultSummaryThreshold = 5

const (
	defaultSummary  = "The investigation begins."
	defaultLocation = "Unknown location."
)

// GlobalContext is the shared narrative state every participant reads.
// Summary is an append-only log, KeyClues an insertion-ordered set,
// LocationState last-write-wins. TurnCount only ever grows.
type GlobalContext struct {
	Summary       string   `json:"summary"`
	KeyClues      []string `json:"key_clues"`
	LocationState string   `json:"location_state"`
	TurnCount     int      `json:"turn_count"`
}

// document is the on-disk shape, one file per campaign.
type document struct {
	GlobalContext     GlobalContext     `json:"global_context"`
	CharacterMemories map[string]string `json:"character_memories"`
	ShortTermBuffer   []string          `json:"short_term_buffer"`
}

// Update mutates the global context through a single operation. Zero
// fields leave their targets untouched.
type Update struct {
	Summary  string
	NewClues []string
	Location string
}

// Store owns the memory document for one campaign. Every mutation is
// written through to disk before the mutator returns; writes go to a
// temp file first and are renamed into place so a crash can never leave
// a partially written document behind.
type Store struct {
	saveDir   string
	file      string
	threshold int
	data      document
	logger    zerolog.Logger
}

// NewStore creates a store rooted at saveDir. A threshold of zero falls
// back to DefaultSummaryThreshold.
func NewStore(saveDir string, threshold int, logger zerolog.Logger) *Store {
	if threshold <= 0 {
		threshold = DefaultSummaryThreshold
	}
	return &Store{
		saveDir:   saveDir,
		threshold: threshold,
		data:      defaultDocument(),
		logger:    logger.With().Str("component", "memory").Logger(),
	}
}

func defaultDocument() document {
	return document{
		GlobalContext: GlobalContext{
			Summary:       defaultSummary,
			KeyClues:      []string{},
			LocationState: defaultLocation,
		},
		CharacterMemories: map[string]string{},
		ShortTermBuffer:   []string{},
	}
}

// Load binds the store to a campaign and reads its memory file if one
// exists. The snapshot is decoded over in-memory defaults, so files
// written by older versions simply leave new fields at their defaults.
func (s *Store) Load(campaignName string) error {
	s.file = filepath.Join(s.saveDir, campaignName+"_memory.json")
	s.data = defaultDocument()

	raw, err := os.ReadFile(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			return s.persist()
		}
		return fmt.Errorf("read memory file: %w", err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return fmt.Errorf("decode memory file %s: %w", s.file, err)
	}
	if s.data.ShortTermBuffer == nil {
		s.data.ShortTermBuffer = []string{}
	}
	if s.data.CharacterMemories == nil {
		s.data.CharacterMemories = map[string]string{}
	}
	if s.data.GlobalContext.KeyClues == nil {
		s.data.GlobalContext.KeyClues = []string{}
	}
	s.logger.Debug().Str("file", s.file).Int("buffer", len(s.data.ShortTermBuffer)).Msg("memory loaded")
	return nil
}

// AppendToBuffer records a "role: content" line in the short-term buffer.
func (s *Store) AppendToBuffer(role, content string) error {
	s.data.ShortTermBuffer = append(s.data.ShortTermBuffer, fmt.Sprintf("%s: %s", role, content))
	return s.persist()
}

// ShouldSummarize reports whether the buffer has reached the
// condensation threshold. The store only signals; condensation is the
// caller's step.
func (s *Store) ShouldSummarize() bool {
	return len(s.data.ShortTermBuffer) >= s.threshold
}

// BufferContent returns the buffer joined by newlines.
func (s *Store) BufferContent() string {
	return strings.Join(s.data.ShortTermBuffer, "\n")
}

// ClearBuffer empties the short-term buffer after condensation.
func (s *Store) ClearBuffer() error {
	s.data.ShortTermBuffer = []string{}
	return s.persist()
}

// UpdateGlobalContext applies a context update. Summaries append behind
// an [UPDATE] delimiter (the seeded opening line is replaced outright),
// clues insert idempotently in arrival order, location overwrites.
func (s *Store) UpdateGlobalContext(u Update) error {
	if u.Summary != "" {
		if s.data.GlobalContext.Summary == defaultSummary || s.data.GlobalContext.Summary == "" {
			s.data.GlobalContext.Summary = u.Summary
		} else {
			s.data.GlobalContext.Summary = fmt.Sprintf("%s\n\n[UPDATE]: %s", s.data.GlobalContext.Summary, u.Summary)
		}
	}

	if len(u.NewClues) > 0 {
		existing := make(map[string]struct{}, len(s.data.GlobalContext.KeyClues))
		for _, c := range s.data.GlobalContext.KeyClues {
			existing[c] = struct{}{}
		}
		for _, clue := range u.NewClues {
			if _, ok := existing[clue]; ok {
				continue
			}
			existing[clue] = struct{}{}
			s.data.GlobalContext.KeyClues = append(s.data.GlobalContext.KeyClues, clue)
		}
	}

	if u.Location != "" {
		s.data.GlobalContext.LocationState = u.Location
	}

	return s.persist()
}

// AdvanceTurn bumps the monotonic turn counter.
func (s *Store) AdvanceTurn() error {
	s.data.GlobalContext.TurnCount++
	return s.persist()
}

// Snapshot returns a copy of the global context for display.
func (s *Store) Snapshot() GlobalContext {
	ctx := s.data.GlobalContext
	ctx.KeyClues = append([]string(nil), ctx.KeyClues...)
	return ctx
}

// RenderContext formats the global context as the fixed block embedded
// into prompts.
func (s *Store) RenderContext() string {
	ctx := s.data.GlobalContext
	return fmt.Sprintf(
		"--- CURRENT SITUATION (GLOBAL MEMORY) ---\n"+
			"SUMMARY: %s\n"+
			"LOCATION: %s\n"+
			"KNOWN CLUES: %s\n"+
			"-----------------------------------------",
		ctx.Summary, ctx.LocationState, strings.Join(ctx.KeyClues, ", "))
}

// SetCharacterMemory records a private note for one character.
func (s *Store) SetCharacterMemory(name, note string) error {
	s.data.CharacterMemories[name] = note
	return s.persist()
}

// CharacterMemory returns a character's private note, if any.
func (s *Store) CharacterMemory(name string) (string, bool) {
	note, ok := s.data.CharacterMemories[name]
	return note, ok
}

// persist writes the document through to disk. No-op until Load has
// bound the store to a campaign.
func (s *Store) persist() error {
	if s.file == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("create save directory: %w", err)
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}

	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write memory temp file: %w", err)
	}
	if err := os.Rename(tmp, s.file); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}
