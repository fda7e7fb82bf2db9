// Package session implements the turn and roll-interrupt state
// machine. It owns the durable SessionState snapshot: whose turn it
// is, whether a roll gates progress, and the display transcript.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TranscriptEntry is one displayed message. Role is "user", "keeper"
// or "agent".
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentStats is the persisted slice of a character sheet.
type AgentStats struct {
	Sanity int            `json:"Sanity"`
	Skills map[string]int `json:"Skills,omitempty"`
}

// AgentState is what survives a restart for one party member.
type AgentState struct {
	Inventory []string   `json:"inventory"`
	Stats     AgentStats `json:"stats"`
}

// SessionState is the durable snapshot the controller restores from.
// It is the sole source of truth across process restarts; narrative
// history is rebuilt from the transcript, never by replaying oracle
// calls.
type SessionState struct {
	History     []TranscriptEntry     `json:"history"`
	Agents      map[string]AgentState `json:"agents"`
	TurnQueue   []string              `json:"turn_queue"`
	PendingRoll bool                  `json:"pending_roll"`
}

// SavePath returns the save file for a campaign name.
func SavePath(saveDir, campaignName string) string {
	clean := strings.NewReplacer(" ", "_", "/", "-").Replace(campaignName)
	return filepath.Join(saveDir, fmt.Sprintf("%s_save.json", clean))
}

// Save writes the snapshot atomically (write-temp-then-rename), so a
// crash mid-write never corrupts the previous save.
func (s *SessionState) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create save directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace session state: %w", err)
	}
	return nil
}

// LoadState reads a snapshot. A missing file yields a fresh empty
// state so a new campaign starts cleanly.
func LoadState(path string) (*SessionState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &SessionState{Agents: map[string]AgentState{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session state: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse session state: %w", err)
	}
	if state.Agents == nil {
		state.Agents = map[string]AgentState{}
	}
	return &state, nil
}
