package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/leon5354/Coc-AI-Runner/cocai/oracle"
)

const scripterChatInstruction = `You are THE SCRIPTER, a creative consultant for a Call of Cthulhu RPG.

=== YOUR ROLE ===
- Collaborate with the user to brainstorm horror scenarios.
- **Initial Question:** Ask if this is for a **Solo Adventure** (User + NPC Companions) or a **Group Game**.
- If **Solo**: Focus on the User's role as the protagonist. Design companions with deep personalities and relationships to the user.
- **Language:** Reply in the same language the user uses (English / Traditional Chinese).
- Ask probing questions about the setting, the horror element, and the tone.
- DO NOT generate the full script yet. Just refine the ideas.`

const scripterArchitectInstruction = `You are THE ARCHITECT. Your job is to take a scenario concept and structure it into a precise JSON format for a game engine.

=== LANGUAGE RULES (STRICT) ===
- **IF INPUT IS CHINESE:** The title, introduction, description, dialogue, item names, etc., MUST be in **Traditional Chinese (繁體中文)**.
- **Dialogue:** Use **Cantonese Colloquialisms (廣東話口語)** for spoken lines if the user requests Cantonese or if the setting implies it (e.g., Hong Kong).
- **Title:** Must be descriptive and in the requested language.

=== GAME MECHANICS (CRITICAL) ===
- **Dice Rules:** You MUST include Call of Cthulhu 7th Ed mechanics unless told otherwise.
- **Skill Checks:** Specify difficulty (Regular, Hard, Extreme). Example: "Spot Hidden (Hard)".
- **Sanity (SAN):** For horror events, specify cost (e.g., "0/1d3").

=== OUTPUT STRUCTURE ===
Return ONLY valid JSON matching this structure.

{
  "title": "String",
  "introduction": "String (Long, atmospheric description)",
  "plot_outline": "String (Step-by-step events)",
  "endings": [
    { "outcome": "String", "description": "String" }
  ],
  "ai_party": [
    {
      "name": "String",
      "gender": "String (Male/Female/Other)",
      "personality": "String (Deep psychological profile, specific fears, motivations, quirks)",
      "backstory": "String (Detailed history, secrets, and connection to the mythos)",
      "relationship_to_player": "String (e.g., 'Childhood friend', 'Rival', 'Employee', 'Protector')",
      "stats": { "Sanity": 60, "Skills": { "SkillName": 50 } }
    }
  ],
  "scenes": [
    {
      "id": "unique_string_id",
      "name": "String",
      "description": "String (Detailed sensory info)",
      "items": [
        { "name": "String", "description": "String", "effect": "String" }
      ],
      "clues": [
        {
          "description": "String",
          "skill_check": "String (e.g. 'Spot Hidden (Hard)')",
          "success_outcome": "String (What they find)",
          "failure_outcome": "String (consequence)"
        }
      ],
      "sanity_events": [
        { "trigger": "String", "loss": "String (e.g. '1/1d4')" }
      ],
      "next_scenes": [
        { "target": "scene_id", "condition": "String" }
      ]
    }
  ]
}`

const scripterMaxTokens = 8192

// Message is one turn of a Scripter brainstorming conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "scripter"
	Content string `json:"content"`
}

// ParseError reports a generation that came back as invalid JSON; Raw
// carries the model output for inspection.
type ParseError struct {
	Raw string
	err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("model failed to produce valid JSON: %v", e.err)
}

func (e *ParseError) Unwrap() error { return e.err }

// Scripter drafts new campaign files through conversation.
type Scripter struct {
	provider oracle.Provider
	logger   zerolog.Logger
}

func NewScripter(provider oracle.Provider, logger zerolog.Logger) *Scripter {
	return &Scripter{
		provider: provider,
		logger:   logger.With().Str("component", "scripter").Logger(),
	}
}

// Chat continues a brainstorming conversation about a scenario idea.
func (s *Scripter) Chat(ctx context.Context, history []Message) (string, error) {
	var b strings.Builder
	for _, msg := range history {
		role := "Scripter"
		if msg.Role == "user" {
			role = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, msg.Content)
	}
	return s.provider.Complete(ctx, b.String(), scripterChatInstruction, oracle.Options{Temperature: 0.8})
}

// GenerateCampaign turns brainstorming notes into a validated campaign
// YAML document. The model answers in JSON; the JSON is converted to
// YAML for the campaign library.
func (s *Scripter) GenerateCampaign(ctx context.Context, notes string) ([]byte, error) {
	prompt := fmt.Sprintf("Create a full Call of Cthulhu scenario based on these notes:\n\n%s", notes)

	raw, err := s.provider.Complete(ctx, prompt, scripterArchitectInstruction, oracle.Options{
		Temperature: 0.7,
		MaxTokens:   scripterMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("campaign generation: %w", err)
	}

	clean := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(raw, "```json", ""), "```", ""))

	var doc any
	if err := json.Unmarshal([]byte(clean), &doc); err != nil {
		return nil, &ParseError{Raw: raw, err: err}
	}
	// Some models wrap the object in a single-element array.
	if list, ok := doc.([]any); ok {
		if len(list) == 0 {
			return nil, &ParseError{Raw: raw, err: fmt.Errorf("generated JSON is an empty list")}
		}
		obj, ok := list[0].(map[string]any)
		if !ok {
			return nil, &ParseError{Raw: raw, err: fmt.Errorf("generated JSON is a list, expected object")}
		}
		doc = obj
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert to yaml: %w", err)
	}
	s.logger.Info().Int("bytes", len(out)).Msg("campaign generated")
	return out, nil
}
