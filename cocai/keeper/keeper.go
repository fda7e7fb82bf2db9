// Package keeper implements the Game Master orchestrator. The Keeper
// owns the narrative timeline: every scene the oracle produces is
// appended here, and other components read it rather than keeping
// their own copies.
package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/leon5354/Coc-AI-Runner/cocai/campaign"
	"github.com/leon5354/Coc-AI-Runner/cocai/memory"
	"github.com/leon5354/Coc-AI-Runner/cocai/memory/recall"
	"github.com/leon5354/Coc-AI-Runner/cocai/oracle"
)

// RollToken is the control token the Keeper embeds when the narrative
// demands a dice roll before play may continue. It travels inside the
// narrative text; stripping it for display is the caller's job.
const RollToken = "[ROLL_REQUIRED]"

// defaultRecallLimit caps how many past-event snippets ride into a
// prompt when no limit is configured.
const defaultRecallLimit = 3

// NarrativeEntry is one beat of the timeline.
type NarrativeEntry struct {
	Description string `json:"description"`
}

// Keeper narrates the scenario and arbitrates its rules.
type Keeper struct {
	camp     *campaign.Campaign
	provider oracle.Provider
	tier     oracle.Tier
	history  []NarrativeEntry
	recall   *recall.Index
	recallK  int
	logger   zerolog.Logger
}

func New(camp *campaign.Campaign, provider oracle.Provider, tier oracle.Tier, logger zerolog.Logger) *Keeper {
	return &Keeper{
		camp:     camp,
		provider: provider,
		tier:     tier,
		logger:   logger.With().Str("component", "keeper").Logger(),
	}
}

// WithRecall attaches a long-term memory index. Past events relevant
// to the current input are folded into each prompt, and every new
// scene is indexed for later sessions. A non-positive limit falls back
// to the default.
func (k *Keeper) WithRecall(ix *recall.Index, limit int) *Keeper {
	if limit <= 0 {
		limit = defaultRecallLimit
	}
	k.recall = ix
	k.recallK = limit
	return k
}

func (k *Keeper) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are the KEEPER OF ARCANE LORE (Game Master) for a Call of Cthulhu 7th Edition scenario.\n\n")
	b.WriteString("=== CAMPAIGN CONTEXT ===\n")
	fmt.Fprintf(&b, "Title: %s\n", k.camp.Title)
	fmt.Fprintf(&b, "Introduction: %s\n\n", k.camp.Introduction)
	b.WriteString("=== LANGUAGE GUIDELINES (STRICT) ===\n")
	b.WriteString("1. **Detect Language:** Follow the user's input language strictly.\n")
	b.WriteString("   - **English Input** -> Respond in **English**.\n")
	b.WriteString("   - **Chinese/Cantonese Input** -> Respond in **Traditional Chinese (繁體中文)**.\n\n")
	b.WriteString("2. **Chinese Style Guide:**\n")
	b.WriteString("   - **Narration (Story/Environment):** Use formal written Chinese (書面語).\n")
	b.WriteString("   - **Dialogue (NPCs Speaking):** Use Cantonese colloquialisms (廣東話口語).\n")

	if k.tier == oracle.TierRich {
		b.WriteString("\n=== YOUR RESPONSIBILITIES (COMPLEX MODE) ===\n")
		b.WriteString("1. ATMOSPHERE & FREEDOM:\n")
		b.WriteString("   - Describe scenes with visceral, sensory details (smell, sound, touch).\n")
		b.WriteString("   - **MATURE THEMES:** You are running a horror game for adults. Do not censor violence, madness, or intense interpersonal situations if they fit the story.\n")
		b.WriteString("   - **PROTAGONIST FOCUS:** Center the narrative on the Protagonist's desires and fears.\n\n")
		b.WriteString("2. PACING: End every description with a call to action: \"What do you do?\" / \"你打算點做？\"\n\n")
		b.WriteString("3. RULES ARBITRATION (SMART):\n")
		b.WriteString("   - **AUTO-DECIDE SKILLS:** If the player describes an action without naming a skill, YOU must decide the relevant skill and Target Number immediately.\n")
		b.WriteString("   - **DICE PROTOCOL:**\n")
		b.WriteString("     - **PROPOSE A CHECK:** \"Please roll for [Skill Name] (Target: [Value]). [ROLL_REQUIRED]\"\n")
		b.WriteString("     - **NEGOTIATION:** If the player suggests a different skill that makes sense, ACCEPT IT and ask for the new roll.\n")
		b.WriteString("     - **CRITICAL:** Always end the roll request with `[ROLL_REQUIRED]`.\n")
		b.WriteString("   - **INTERPRETATION:**\n")
		b.WriteString("     - *Success:* Narrate the achievement vividly.\n")
		b.WriteString("     - *Failure:* Narrate the consequence or complication.\n")
		b.WriteString("     - *Fumble (96-100):* Disaster strikes.\n")
		b.WriteString("   - **SANITY (SAN):** Call for Sanity rolls immediately upon witnessing horrors. Fail = 1d4/1d6 SAN loss.\n\n")
		b.WriteString("4. NPC MANAGEMENT: Roleplay NPCs based on the campaign notes.\n\n")
		b.WriteString("=== RULES OF CONDUCT ===\n")
		b.WriteString("- **PRIORITIZE PLAYER AGENCY:** If the player wants to try something dangerous, let them try.\n")
		b.WriteString("- Do NOT play the user's character (Protagonist).\n")
		b.WriteString("- Be fair but unforgiving. The cosmos does not care about the investigators.\n")
	} else {
		b.WriteString("\n=== YOUR RESPONSIBILITIES (SIMPLE MODE) ===\n")
		b.WriteString("- Describe the scene clearly.\n")
		b.WriteString("- Ask the player what they want to do.\n")
		b.WriteString("- Keep responses concise (under 200 words).\n")
		b.WriteString("- Do not play the user's character.\n")
	}
	return b.String()
}

// GenerateNarrative sends input to the oracle and appends the result
// to the timeline. The returned text is verbatim, including any
// embedded RollToken. An oracle failure never halts the session: the
// clouded-mind placeholder takes the scene's place in the timeline
// instead of an error.
func (k *Keeper) GenerateNarrative(ctx context.Context, input string) (string, error) {
	prompt := input
	if k.recall != nil {
		if past, err := k.recall.Query(ctx, input, k.recallK); err != nil {
			k.logger.Warn().Err(err).Msg("recall query failed")
		} else if len(past) > 0 {
			prompt = fmt.Sprintf("=== RELEVANT PAST EVENTS ===\n%s\n\n%s", strings.Join(past, "\n"), input)
		}
	}

	text, err := k.provider.Complete(ctx, prompt, k.systemPrompt(), oracle.Options{Temperature: 0.8})
	if err != nil {
		k.logger.Error().Err(err).Msg("narrative generation failed, degrading")
		text = oracle.CloudedMind(err)
		k.history = append(k.history, NarrativeEntry{Description: text})
		return text, nil
	}

	k.history = append(k.history, NarrativeEntry{Description: text})
	if k.recall != nil {
		if err := k.recall.Add(ctx, StripRollToken(text), map[string]string{"kind": "narrative"}); err != nil {
			k.logger.Warn().Err(err).Msg("failed to index narrative")
		}
	}
	k.logger.Debug().Int("history", len(k.history)).Msg("scene appended")
	return text, nil
}

// DemandsRoll reports whether the narrative halts play for a dice roll.
func DemandsRoll(text string) bool {
	return strings.Contains(text, RollToken)
}

// StripRollToken removes the control token for display.
func StripRollToken(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, RollToken, ""))
}

// LatestScene returns the most recent narrative beat, or "".
func (k *Keeper) LatestScene() string {
	if len(k.history) == 0 {
		return ""
	}
	return k.history[len(k.history)-1].Description
}

// HistorySnapshot copies the timeline for persistence.
func (k *Keeper) HistorySnapshot() []NarrativeEntry {
	out := make([]NarrativeEntry, len(k.history))
	copy(out, k.history)
	return out
}

// RestoreHistory replaces the timeline from a saved session.
func (k *Keeper) RestoreHistory(entries []NarrativeEntry) {
	k.history = append([]NarrativeEntry(nil), entries...)
}

// Campaign exposes the loaded scenario.
func (k *Keeper) Campaign() *campaign.Campaign { return k.camp }

const summarizeInstruction = `You are a chronicle keeper condensing a horror RPG session log.
Read the recent events and answer ONLY with a JSON object:
{
  "summary": "1-3 sentences covering what happened",
  "new_clues": ["each concrete clue or discovery, verbatim and short"],
  "location": "where the party is now, or empty string if unchanged"
}
Keep the language of the log. Do not invent events.`

// SummarizeBuffer condenses a short-term buffer into a global context
// update via the oracle.
func (k *Keeper) SummarizeBuffer(ctx context.Context, buffer string) (memory.Update, error) {
	raw, err := k.provider.Complete(ctx, buffer, summarizeInstruction, oracle.Options{
		Temperature: 0.3,
		JSONMode:    true,
	})
	if err != nil {
		return memory.Update{}, fmt.Errorf("summarization: %w", err)
	}

	clean := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(raw, "```json", ""), "```", ""))
	var parsed struct {
		Summary  string   `json:"summary"`
		NewClues []string `json:"new_clues"`
		Location string   `json:"location"`
	}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return memory.Update{}, fmt.Errorf("parse summary: %w", err)
	}
	return memory.Update{
		Summary:  parsed.Summary,
		NewClues: parsed.NewClues,
		Location: parsed.Location,
	}, nil
}
