// Package agents holds the autonomous party members and the scenario
// Scripter. Each investigator is an independent character with its own
// sheet, inventory, and voice; the Keeper never speaks for them.
package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/leon5354/Coc-AI-Runner/cocai/campaign"
	"github.com/leon5354/Coc-AI-Runner/cocai/memory"
	"github.com/leon5354/Coc-AI-Runner/cocai/oracle"
)

// DefaultContextTruncate caps how much of the shared memory block rides
// along in an agent prompt.
const DefaultContextTruncate = 800

const defaultOccupation = "Investigator"

// Investigator is one AI-controlled party member.
type Investigator struct {
	Name        string
	Gender      string
	Occupation  string
	Personality string
	Backstory   string

	// ContextTruncate may be lowered for small local models.
	ContextTruncate int

	sanity    int
	skills    map[string]int
	inventory []string

	provider oracle.Provider
	tier     oracle.Tier
	logger   zerolog.Logger
}

// NewInvestigator builds an agent from its campaign sheet.
func NewInvestigator(member campaign.PartyMember, provider oracle.Provider, tier oracle.Tier, logger zerolog.Logger) *Investigator {
	skills := make(map[string]int, len(member.Stats.Skills))
	for name, level := range member.Stats.Skills {
		skills[name] = level
	}
	gender := member.Gender
	if gender == "" {
		gender = "Unknown"
	}
	occupation := member.Stats.Occupation
	if occupation == "" {
		occupation = defaultOccupation
	}
	inv := &Investigator{
		Name:            member.Name,
		Gender:          gender,
		Occupation:      occupation,
		Personality:     member.Personality,
		Backstory:       member.Backstory,
		ContextTruncate: DefaultContextTruncate,
		sanity:          member.Stats.Sanity,
		skills:          skills,
		provider:        provider,
		tier:            tier,
		logger:          logger.With().Str("agent", member.Name).Logger(),
	}
	inv.logger.Info().Str("gender", gender).Int("sanity", inv.sanity).Msg("investigator initialized")
	return inv
}

// Sanity returns the current sanity score.
func (inv *Investigator) Sanity() int { return inv.sanity }

// SetSanity overwrites the sanity score, used when restoring a session.
func (inv *Investigator) SetSanity(v int) {
	if v < 0 {
		v = 0
	}
	inv.sanity = v
}

// ApplySanityLoss deducts points and returns the new score, floored at
// zero.
func (inv *Investigator) ApplySanityLoss(points int) int {
	inv.sanity -= points
	if inv.sanity < 0 {
		inv.sanity = 0
	}
	return inv.sanity
}

// Skills returns a copy of the skill sheet.
func (inv *Investigator) Skills() map[string]int {
	out := make(map[string]int, len(inv.skills))
	for name, level := range inv.skills {
		out[name] = level
	}
	return out
}

// SkillLevel reports the level for a named skill.
func (inv *Investigator) SkillLevel(name string) (int, bool) {
	level, ok := inv.skills[name]
	return level, ok
}

// AddItem appends to the inventory.
func (inv *Investigator) AddItem(name string) {
	inv.inventory = append(inv.inventory, name)
}

// Inventory returns a copy of the carried items.
func (inv *Investigator) Inventory() []string {
	out := make([]string, len(inv.inventory))
	copy(out, inv.inventory)
	return out
}

// SetInventory replaces the carried items, used when restoring a
// session.
func (inv *Investigator) SetInventory(items []string) {
	inv.inventory = append([]string(nil), items...)
}

func (inv *Investigator) systemPrompt() string {
	items := "None"
	if len(inv.inventory) > 0 {
		items = strings.Join(inv.inventory, ", ")
	}

	skillNames := make([]string, 0, len(inv.skills))
	for name := range inv.skills {
		skillNames = append(skillNames, name)
	}
	sort.Strings(skillNames)
	skillParts := make([]string, 0, len(skillNames))
	for _, name := range skillNames {
		skillParts = append(skillParts, fmt.Sprintf("%s (%d%%)", name, inv.skills[name]))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n\n", inv.Name)
	b.WriteString("=== CHARACTER PROFILE ===\n")
	fmt.Fprintf(&b, "- **Gender:** %s\n", inv.Gender)
	fmt.Fprintf(&b, "- **Personality:** %s\n", inv.Personality)
	fmt.Fprintf(&b, "- **Occupation:** %s\n\n", inv.Occupation)
	b.WriteString("=== ROLE: INDEPENDENT INVESTIGATOR ===\n")
	b.WriteString("- **You are NOT a servant.** You are a partner to the Protagonist.\n")
	b.WriteString("- **Autonomy:** You have your own fears, goals, and opinions. Speak up if you disagree with the plan.\n")
	b.WriteString("- **Assets:**\n")
	fmt.Fprintf(&b, "  - Items: %s\n", items)
	fmt.Fprintf(&b, "  - Skills: %s\n\n", strings.Join(skillParts, ", "))
	b.WriteString("=== LANGUAGE RULES (MANDATORY) ===\n")
	b.WriteString("1. **Detect Language:** Reply in the same language the Protagonist uses.\n")
	b.WriteString("   - **English** -> Reply in **English**.\n")
	b.WriteString("   - **Traditional Chinese (Written)** -> Reply in **Traditional Chinese**.\n")
	b.WriteString("   - **Cantonese (Spoken)** -> Reply in **Cantonese (Traditional Chinese characters + Cantonese grammar/slang)**.\n\n")
	b.WriteString("2. **Consistency:** Do not switch languages mid-sentence unless it fits the character's background.\n")

	if inv.tier == oracle.TierRich {
		b.WriteString("\n=== ADVANCED INSTRUCTIONS ===\n")
		b.WriteString("- **Deep Immersion:** Your tone should reflect your personality traits strongly.\n")
		b.WriteString("- **Fear Response:** If your Sanity is low, you may panic, freeze, or act irrationally.\n")
		b.WriteString("- **Tactical Thinking:** Analyze the situation and offer specific tactical advice, not just agreement.\n")
		b.WriteString("- **Proactivity:** Observe the environment and act on it.\n")
		b.WriteString("- **Interaction:** If the Protagonist suggests something foolish, challenge or mock them.\n")
	} else {
		b.WriteString("\n=== BASIC INSTRUCTIONS ===\n")
		b.WriteString("- Keep answers concise.\n")
		b.WriteString("- Stay in character; do not break immersion.\n")
		b.WriteString("- If asked for an opinion, give brief advice.\n")
		b.WriteString("- Do not output internal thought processes.\n")
	}
	return b.String()
}

// GenerateDialogue answers the Protagonist in character without taking
// a physical action. A backend failure degrades to the in-character
// placeholder instead of an error.
func (inv *Investigator) GenerateDialogue(ctx context.Context, userInput, lastScene string, mem *memory.Store) string {
	var b strings.Builder
	if mem != nil {
		fmt.Fprintf(&b, "=== SITUATION REPORT ===\n%s...\n", truncateRunes(mem.RenderContext(), inv.ContextTruncate))
	}
	if lastScene != "" {
		fmt.Fprintf(&b, "=== CURRENT SCENE ===\nThe Keeper describes: '%s'\n", lastScene)
	}
	fmt.Fprintf(&b, "The Protagonist says to you: \"%s\"\n\nReply to the Protagonist in character, considering the current scene.", userInput)

	reply, err := inv.provider.Complete(ctx, b.String(), inv.systemPrompt(), oracle.Options{Temperature: 0.7})
	if err != nil {
		inv.logger.Error().Err(err).Msg("dialogue generation failed")
		return oracle.CloudedMind(err)
	}
	return reply
}

// GenerateAction decides what the investigator does next, given the
// latest scene. The result carries the speaker prefix the narrative
// log expects.
func (inv *Investigator) GenerateAction(ctx context.Context, lastScene string, mem *memory.Store) string {
	var b strings.Builder
	if mem != nil {
		fmt.Fprintf(&b, "=== SHARED MEMORY ===\n%s...\n", truncateRunes(mem.RenderContext(), inv.ContextTruncate))
	}
	if lastScene == "" {
		b.WriteString("The game begins. What is our plan?")
	} else {
		fmt.Fprintf(&b, "The Keeper (GM) describes: '%s'.\n\nGiven this situation, what do you decide to do? Describe your action.", lastScene)
	}

	action, err := inv.provider.Complete(ctx, b.String(), inv.systemPrompt(), oracle.Options{Temperature: 0.7})
	if err != nil {
		inv.logger.Error().Err(err).Msg("action generation failed")
		action = oracle.CloudedMind(err)
	}
	return fmt.Sprintf("**%s:** %s", inv.Name, action)
}

// truncateRunes shortens s to at most limit runes, so multi-byte text
// is never cut mid-character.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
