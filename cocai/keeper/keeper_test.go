package keeper

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

type stubProvider struct {
	reply      string
	err        error
	lastPrompt string
	lastSystem string
	lastOpts   oracle.Options
}

func (s *stubProvider) Complete(_ context.Context, prompt, system string, opts oracle.Options) (string, error) {
	s.lastPrompt = prompt
	s.lastSystem = system
	s.lastOpts = opts
	return s.reply, s.err
}

func testCampaign() *campaign.Campaign {
	return &campaign.Campaign{
		Title:        "The Sunken Chapel",
		Introduction: "Rain hammers the tin roof as the last ferry leaves.",
		Scenes:       []campaign.Scene{{ID: "nave", Name: "The Nave", Description: "Rotted pews."}},
	}
}

func TestSystemPromptCarriesCampaign(t *testing.T) {
	stub := &stubProvider{reply: "The chapel door creaks. What do you do?"}
	k := New(testCampaign(), stub, oracle.TierRich, zerolog.Nop())

	_, err := k.GenerateNarrative(context.Background(), "I step inside.")
	require.NoError(t, err)

	assert.Contains(t, stub.lastSystem, "KEEPER OF ARCANE LORE")
	assert.Contains(t, stub.lastSystem, "Title: The Sunken Chapel")
	assert.Contains(t, stub.lastSystem, "COMPLEX MODE")
	assert.Contains(t, stub.lastSystem, RollToken)
}

func TestSystemPromptSimpleMode(t *testing.T) {
	stub := &stubProvider{reply: "ok"}
	k := New(testCampaign(), stub, oracle.TierBasic, zerolog.Nop())

	_, err := k.GenerateNarrative(context.Background(), "hello")
	require.NoError(t, err)

	assert.Contains(t, stub.lastSystem, "SIMPLE MODE")
	assert.NotContains(t, stub.lastSystem, "COMPLEX MODE")
}

func TestGenerateNarrativeAppendsVerbatim(t *testing.T) {
	stub := &stubProvider{reply: "Please roll for Spot Hidden (Target: 60). [ROLL_REQUIRED]"}
	k := New(testCampaign(), stub, oracle.TierRich, zerolog.Nop())

	text, err := k.GenerateNarrative(context.Background(), "I search the altar.")
	require.NoError(t, err)

	// The token stays in the returned text and in the timeline;
	// stripping is the controller's job.
	assert.True(t, DemandsRoll(text))
	assert.Equal(t, text, k.LatestScene())
}

func TestGenerateNarrativeDegradesOnOracleFailure(t *testing.T) {
	stub := &stubProvider{err: errors.New("backend down")}
	k := New(testCampaign(), stub, oracle.TierRich, zerolog.Nop())

	text, err := k.GenerateNarrative(context.Background(), "I open the crypt.")
	require.NoError(t, err)

	// The session never halts on a backend failure; the placeholder
	// takes the scene's place in the timeline.
	assert.Contains(t, text, "[SYSTEM ERROR]")
	assert.Contains(t, text, "backend down")
	assert.False(t, DemandsRoll(text))
	assert.Equal(t, text, k.LatestScene())
	require.Len(t, k.HistorySnapshot(), 1)
}

func TestHistorySnapshotAndRestore(t *testing.T) {
	stub := &stubProvider{reply: "scene one"}
	k := New(testCampaign(), stub, oracle.TierRich, zerolog.Nop())

	_, err := k.GenerateNarrative(context.Background(), "begin")
	require.NoError(t, err)
	snap := k.HistorySnapshot()
	require.Len(t, snap, 1)

	// Snapshot is a copy, not an alias.
	snap[0].Description = "tampered"
	assert.Equal(t, "scene one", k.LatestScene())

	k2 := New(testCampaign(), stub, oracle.TierRich, zerolog.Nop())
	k2.RestoreHistory([]NarrativeEntry{{Description: "restored"}})
	assert.Equal(t, "restored", k2.LatestScene())
}

func TestDemandsRollAndStrip(t *testing.T) {
	raw := "Please roll for Brawl (Target: 45). [ROLL_REQUIRED]"
	assert.True(t, DemandsRoll(raw))
	assert.Equal(t, "Please roll for Brawl (Target: 45).", StripRollToken(raw))
	assert.False(t, DemandsRoll("The rain stops."))
}

func TestSummarizeBuffer(t *testing.T) {
	stub := &stubProvider{reply: "```json\n{\"summary\": \"The party searched the nave.\", \"new_clues\": [\"tidal chart\"], \"location\": \"The Nave\"}\n```"}
	k := New(testCampaign(), stub, oracle.TierRich, zerolog.Nop())

	update, err := k.SummarizeBuffer(context.Background(), "user: I search\nkeeper: You find a chart")
	require.NoError(t, err)

	assert.True(t, stub.lastOpts.JSONMode)
	assert.Equal(t, "The party searched the nave.", update.Summary)
	assert.Equal(t, []string{"tidal chart"}, update.NewClues)
	assert.Equal(t, "The Nave", update.Location)
}

func TestSummarizeBufferBadJSON(t *testing.T) {
	stub := &stubProvider{reply: "not json"}
	k := New(testCampaign(), stub, oracle.TierRich, zerolog.Nop())

	_, err := k.SummarizeBuffer(context.Background(), "buffer")
	require.Error(t, err)
}
