package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leon5354/Coc-AI-Runner/cocai/campaign"
	"github.com/leon5354/Coc-AI-Runner/cocai/oracle"
)

// stubProvider records the last call and replays a canned reply.
type stubProvider struct {
	reply      string
	err        error
	lastPrompt string
	lastSystem string
	lastOpts   oracle.Options
	calls      int
}

func (s *stubProvider) Complete(_ context.Context, prompt, system string, opts oracle.Options) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	s.lastSystem = system
	s.lastOpts = opts
	return s.reply, s.err
}

func testMember() campaign.PartyMember {
	return campaign.PartyMember{
		Name:        "Dr. Helen Marsh",
		Gender:      "Female",
		Personality: "Methodical, quietly terrified of deep water.",
		Stats: campaign.Stats{
			Sanity: 65,
			Skills: map[string]int{"Spot Hidden": 60, "Biology": 70},
		},
	}
}

func TestSystemPromptCarriesSheet(t *testing.T) {
	stub := &stubProvider{reply: "ok"}
	inv := NewInvestigator(testMember(), stub, oracle.TierRich, zerolog.Nop())
	inv.AddItem("Brass lantern")

	inv.GenerateDialogue(context.Background(), "what now?", "", nil)

	assert.Contains(t, stub.lastSystem, "You are Dr. Helen Marsh.")
	assert.Contains(t, stub.lastSystem, "Biology (70%)")
	assert.Contains(t, stub.lastSystem, "Spot Hidden (60%)")
	assert.Contains(t, stub.lastSystem, "Brass lantern")
	assert.Contains(t, stub.lastSystem, "ADVANCED INSTRUCTIONS")
}

func TestOccupationFromSheetWithDefault(t *testing.T) {
	stub := &stubProvider{reply: "ok"}
	member := testMember()
	member.Stats.Occupation = "Marine Biologist"
	inv := NewInvestigator(member, stub, oracle.TierRich, zerolog.Nop())

	inv.GenerateDialogue(context.Background(), "what now?", "", nil)
	assert.Contains(t, stub.lastSystem, "**Occupation:** Marine Biologist")

	// A sheet without an occupation falls back to the generic one.
	inv = NewInvestigator(testMember(), stub, oracle.TierRich, zerolog.Nop())
	inv.GenerateDialogue(context.Background(), "what now?", "", nil)
	assert.Contains(t, stub.lastSystem, "**Occupation:** Investigator")
}

func TestSystemPromptBasicTier(t *testing.T) {
	stub := &stubProvider{reply: "ok"}
	inv := NewInvestigator(testMember(), stub, oracle.TierBasic, zerolog.Nop())

	inv.GenerateDialogue(context.Background(), "hello", "", nil)

	assert.Contains(t, stub.lastSystem, "BASIC INSTRUCTIONS")
	assert.NotContains(t, stub.lastSystem, "ADVANCED INSTRUCTIONS")
	assert.Contains(t, stub.lastSystem, "Items: None")
}

func TestGenerateDialoguePromptShape(t *testing.T) {
	stub := &stubProvider{reply: "I think we should wait."}
	inv := NewInvestigator(testMember(), stub, oracle.TierRich, zerolog.Nop())

	reply := inv.GenerateDialogue(context.Background(), "should we go in?", "The door hangs open.", nil)

	assert.Equal(t, "I think we should wait.", reply)
	assert.Contains(t, stub.lastPrompt, "The Keeper describes: 'The door hangs open.'")
	assert.Contains(t, stub.lastPrompt, `The Protagonist says to you: "should we go in?"`)
}

func TestGenerateDialogueCloudedOnFailure(t *testing.T) {
	stub := &stubProvider{err: errors.New("rate limited")}
	inv := NewInvestigator(testMember(), stub, oracle.TierRich, zerolog.Nop())

	reply := inv.GenerateDialogue(context.Background(), "hello?", "", nil)

	assert.Contains(t, reply, "[SYSTEM ERROR]")
	assert.Contains(t, reply, "rate limited")
}

func TestGenerateActionPrefixesSpeaker(t *testing.T) {
	stub := &stubProvider{reply: "I check the window."}
	inv := NewInvestigator(testMember(), stub, oracle.TierRich, zerolog.Nop())

	action := inv.GenerateAction(context.Background(), "The hallway is dark.", nil)

	assert.Equal(t, "**Dr. Helen Marsh:** I check the window.", action)
	assert.Contains(t, stub.lastPrompt, "The Keeper (GM) describes: 'The hallway is dark.'")
}

func TestGenerateActionOpeningTurn(t *testing.T) {
	stub := &stubProvider{reply: "Stick together."}
	inv := NewInvestigator(testMember(), stub, oracle.TierRich, zerolog.Nop())

	action := inv.GenerateAction(context.Background(), "", nil)

	assert.Contains(t, action, "**Dr. Helen Marsh:**")
	assert.Contains(t, stub.lastPrompt, "The game begins. What is our plan?")
}

func TestSanityLossClampsAtZero(t *testing.T) {
	inv := NewInvestigator(testMember(), &stubProvider{}, oracle.TierBasic, zerolog.Nop())

	assert.Equal(t, 60, inv.ApplySanityLoss(5))
	assert.Equal(t, 0, inv.ApplySanityLoss(999))
	assert.Equal(t, 0, inv.Sanity())
}

func TestTruncateRunesMultibyteSafe(t *testing.T) {
	s := "高塔之謎高塔之謎"
	assert.Equal(t, "高塔之", truncateRunes(s, 3))
	assert.Equal(t, s, truncateRunes(s, 100))
}

func TestScripterGenerateCampaign(t *testing.T) {
	stub := &stubProvider{reply: "```json\n{\"title\": \"The Sunken Chapel\", \"introduction\": \"Rain.\", \"scenes\": [{\"id\": \"a\", \"name\": \"Nave\", \"description\": \"d\"}]}\n```"}
	s := NewScripter(stub, zerolog.Nop())

	out, err := s.GenerateCampaign(context.Background(), "island chapel, rising tide")
	require.NoError(t, err)

	assert.True(t, stub.lastOpts.JSONMode)
	assert.Equal(t, scripterMaxTokens, stub.lastOpts.MaxTokens)
	assert.Contains(t, string(out), "title: The Sunken Chapel")

	c, err := campaign.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "The Sunken Chapel", c.Title)
}

func TestScripterUnwrapsListOutput(t *testing.T) {
	stub := &stubProvider{reply: `[{"title": "T", "introduction": "I", "scenes": [{"id": "a", "name": "n", "description": "d"}]}]`}
	s := NewScripter(stub, zerolog.Nop())

	out, err := s.GenerateCampaign(context.Background(), "notes")
	require.NoError(t, err)
	assert.Contains(t, string(out), "title: T")
}

func TestScripterParseErrorKeepsRaw(t *testing.T) {
	stub := &stubProvider{reply: "sorry, I cannot do that"}
	s := NewScripter(stub, zerolog.Nop())

	_, err := s.GenerateCampaign(context.Background(), "notes")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "sorry, I cannot do that", perr.Raw)
}

func TestScripterChatFormatsHistory(t *testing.T) {
	stub := &stubProvider{reply: "Solo or group?"}
	s := NewScripter(stub, zerolog.Nop())

	_, err := s.Chat(context.Background(), []Message{
		{Role: "user", Content: "a lighthouse scenario"},
		{Role: "scripter", Content: "tell me more"},
		{Role: "user", Content: "1920s, storm"},
	})
	require.NoError(t, err)
	assert.Contains(t, stub.lastPrompt, "User: a lighthouse scenario\n")
	assert.Contains(t, stub.lastPrompt, "Scripter: tell me more\n")
	assert.Contains(t, stub.lastSystem, "THE SCRIPTER")
}
