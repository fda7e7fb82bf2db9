// Package campaign loads and validates scenario definitions. A campaign
// is a YAML document authored by hand or by the Scripter; the engine
// only ever sees the typed form.
package campaign

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

// Campaign is a complete playable scenario.
type Campaign struct {
	Title        string        `yaml:"title" json:"title"`
	Introduction string        `yaml:"introduction" json:"introduction"`
	PlotOutline  string        `yaml:"plot_outline" json:"plot_outline"`
	Endings      []Ending      `yaml:"endings" json:"endings"`
	AIParty      []PartyMember `yaml:"ai_party" json:"ai_party"`
	Scenes       []Scene       `yaml:"scenes" json:"scenes"`
}

// Ending describes one way the scenario can conclude.
type Ending struct {
	Outcome     string `yaml:"outcome" json:"outcome"`
	Description string `yaml:"description" json:"description"`
}

// PartyMember defines an AI-controlled investigator in the party.
type PartyMember struct {
	Name                 string `yaml:"name" json:"name"`
	Gender               string `yaml:"gender" json:"gender"`
	Personality          string `yaml:"personality" json:"personality"`
	Backstory            string `yaml:"backstory" json:"backstory"`
	RelationshipToPlayer string `yaml:"relationship_to_player" json:"relationship_to_player"`
	Stats                Stats  `yaml:"stats" json:"stats"`
}

// Stats carries the mechanical sheet for a party member. Keys are
// capitalized in the document format.
type Stats struct {
	Sanity     int            `yaml:"Sanity" json:"Sanity"`
	Occupation string         `yaml:"Occupation,omitempty" json:"Occupation,omitempty"`
	Skills     map[string]int `yaml:"Skills" json:"Skills"`
}

// Scene is one location or beat of the scenario.
type Scene struct {
	ID           string        `yaml:"id" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description" json:"description"`
	Items        []Item        `yaml:"items" json:"items"`
	Clues        []Clue        `yaml:"clues" json:"clues"`
	SanityEvents []SanityEvent `yaml:"sanity_events" json:"sanity_events"`
	NextScenes   []Transition  `yaml:"next_scenes" json:"next_scenes"`
}

// Item is something the party can pick up in a scene.
type Item struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Effect      string `yaml:"effect" json:"effect"`
}

// Clue gates information behind a skill check.
type Clue struct {
	Description    string `yaml:"description" json:"description"`
	SkillCheck     string `yaml:"skill_check" json:"skill_check"`
	SuccessOutcome string `yaml:"success_outcome" json:"success_outcome"`
	FailureOutcome string `yaml:"failure_outcome" json:"failure_outcome"`
}

// SanityEvent maps a narrative trigger to a sanity loss expression,
// e.g. "1/1d4".
type SanityEvent struct {
	Trigger string `yaml:"trigger" json:"trigger"`
	Loss    string `yaml:"loss" json:"loss"`
}

// Transition names a possible next scene and the condition to reach it.
type Transition struct {
	Target    string `yaml:"target" json:"target"`
	Condition string `yaml:"condition" json:"condition"`
}

// Load reads and validates a campaign file.
func Load(path string) (*Campaign, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read campaign: %w", err)
	}
	return Parse(raw)
}

// Parse validates raw YAML against the campaign schema and decodes it.
func Parse(raw []byte) (*Campaign, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse campaign yaml: %w", err)
	}

	if err := validate(generic); err != nil {
		return nil, err
	}

	var c Campaign
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode campaign: %w", err)
	}
	return &c, nil
}

func validate(doc any) error {
	// gojsonschema speaks JSON, so the YAML document round-trips
	// through encoding/json first.
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("invalid campaign: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SceneByID returns the scene with the given id, or nil.
func (c *Campaign) SceneByID(id string) *Scene {
	for i := range c.Scenes {
		if c.Scenes[i].ID == id {
			return &c.Scenes[i]
		}
	}
	return nil
}
