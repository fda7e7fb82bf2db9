package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/leon5354/Coc-AI-Runner/cocai/agents"
	"github.com/leon5354/Coc-AI-Runner/cocai/keeper"
	"github.com/leon5354/Coc-AI-Runner/cocai/memory"
	"github.com/leon5354/Coc-AI-Runner/cocai/rules"
)

// Phase is the controller's observable state, derived from the
// pending-roll flag and the turn queue rather than stored separately.
type Phase int

const (
	// PhaseIdle: no pending roll, empty queue; the player has control.
	PhaseIdle Phase = iota
	// PhasePendingRoll: a roll demand gates all turn progress.
	PhasePendingRoll
	// PhaseAgentActing: the head-of-queue agent owes an action.
	PhaseAgentActing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePendingRoll:
		return "pending_roll"
	case PhaseAgentActing:
		return "agent_acting"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ErrWrongPhase means an operation was invoked in a phase that does
// not permit it, e.g. acting while a roll is pending.
var ErrWrongPhase = errors.New("operation not allowed in current session phase")

// RollReport is what an accepted roll produced.
type RollReport struct {
	Roll       int
	Resolution string
}

// Controller sequences player input, Keeper narration, agent turns,
// and roll interrupts for a single active session.
type Controller struct {
	keeper *keeper.Keeper
	party  []*agents.Investigator
	mem    *memory.Store
	engine *rules.Engine

	transcript  []TranscriptEntry
	turnQueue   []string
	pendingRoll bool

	savePath string
	logger   zerolog.Logger
}

func NewController(k *keeper.Keeper, party []*agents.Investigator, mem *memory.Store, engine *rules.Engine, savePath string, logger zerolog.Logger) *Controller {
	return &Controller{
		keeper:   k,
		party:    party,
		mem:      mem,
		engine:   engine,
		savePath: savePath,
		logger:   logger.With().Str("component", "session").Logger(),
	}
}

// Phase derives the current state.
func (c *Controller) Phase() Phase {
	if c.pendingRoll {
		return PhasePendingRoll
	}
	if len(c.turnQueue) > 0 {
		return PhaseAgentActing
	}
	return PhaseIdle
}

// Transcript returns a copy of the display log.
func (c *Controller) Transcript() []TranscriptEntry {
	out := make([]TranscriptEntry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// TurnQueue returns a copy of the pending agent order.
func (c *Controller) TurnQueue() []string {
	out := make([]string, len(c.turnQueue))
	copy(out, c.turnQueue)
	return out
}

// PendingRoll reports whether a roll demand gates progress.
func (c *Controller) PendingRoll() bool { return c.pendingRoll }

func (c *Controller) append(role, content string) {
	c.transcript = append(c.transcript, TranscriptEntry{Role: role, Content: content})
}

// PlayerAct resolves a player action through the Keeper. If the
// narration demands a roll the session enters PhasePendingRoll; the
// returned text is always display-safe (token stripped).
func (c *Controller) PlayerAct(ctx context.Context, input string) (string, error) {
	if c.Phase() != PhaseIdle {
		return "", fmt.Errorf("%w: player action in %s", ErrWrongPhase, c.Phase())
	}
	c.append("user", input)

	raw, err := c.keeper.GenerateNarrative(ctx, input)
	if err != nil {
		return "", err
	}
	if keeper.DemandsRoll(raw) {
		c.pendingRoll = true
	}
	display := keeper.StripRollToken(raw)
	c.append("keeper", display)

	c.recordExchange(ctx, input, display)
	c.persist()
	return display, nil
}

// Discuss collects in-character replies from the whole party without
// consuming the turn. Each reply carries the speaker prefix. Only
// available on the player's turn.
func (c *Controller) Discuss(ctx context.Context, input string) ([]string, error) {
	if c.Phase() != PhaseIdle {
		return nil, fmt.Errorf("%w: discussion in %s", ErrWrongPhase, c.Phase())
	}
	c.append("user", input)

	replies := make([]string, 0, len(c.party))
	for _, agent := range c.party {
		reply := agent.GenerateDialogue(ctx, input, c.keeper.LatestScene(), c.mem)
		formatted := fmt.Sprintf("**%s:** %s", agent.Name, reply)
		c.append("agent", formatted)
		replies = append(replies, formatted)
	}
	c.persist()
	return replies, nil
}

// AcceptRoll draws a percentile roll and resolves the pending demand
// with it.
func (c *Controller) AcceptRoll(ctx context.Context) (RollReport, error) {
	if !c.pendingRoll {
		return RollReport{}, fmt.Errorf("%w: no roll is pending", ErrWrongPhase)
	}
	return c.AcceptRollWith(ctx, c.engine.RollPercentile())
}

// AcceptRollWith resolves the pending demand with a caller-supplied
// roll (a player rolling physical dice). The literal result is fed
// back to the Keeper; any re-emitted token in the resolution is
// stripped so acceptance always terminates the interrupt. If an agent
// turn was in flight, its queue entry is popped now.
func (c *Controller) AcceptRollWith(ctx context.Context, roll int) (RollReport, error) {
	if !c.pendingRoll {
		return RollReport{}, fmt.Errorf("%w: no roll is pending", ErrWrongPhase)
	}
	c.append("user", fmt.Sprintf("**Result:** %d", roll))

	raw, err := c.keeper.GenerateNarrative(ctx, fmt.Sprintf("Result: %d. Resolve the scene.", roll))
	if err != nil {
		return RollReport{}, err
	}
	resolution := keeper.StripRollToken(raw)
	c.append("keeper", resolution)

	c.pendingRoll = false
	if len(c.turnQueue) > 0 {
		c.turnQueue = c.turnQueue[1:]
	}

	c.recordExchange(ctx, fmt.Sprintf("rolled %d", roll), resolution)
	c.persist()
	return RollReport{Roll: roll, Resolution: resolution}, nil
}

// Negotiate sends a counter-proposal for the demanded check. If the
// Keeper re-issues the token the demand stands (pendingRoll stays
// true); if not, the matter resolved narratively and no queue entry is
// popped because no mechanical roll occurred.
func (c *Controller) Negotiate(ctx context.Context, proposal string) (string, error) {
	if !c.pendingRoll {
		return "", fmt.Errorf("%w: no roll is pending", ErrWrongPhase)
	}
	c.append("user", fmt.Sprintf("(Negotiating) %s", proposal))

	raw, err := c.keeper.GenerateNarrative(ctx, fmt.Sprintf("Player asks: '%s'. Re-evaluate the skill check.", proposal))
	if err != nil {
		return "", err
	}
	c.pendingRoll = keeper.DemandsRoll(raw)
	display := keeper.StripRollToken(raw)
	c.append("keeper", display)

	c.persist()
	return display, nil
}

// PassTurn hands the round to the AI party: the queue fills with every
// party member, in order.
func (c *Controller) PassTurn() error {
	if c.Phase() != PhaseIdle {
		return fmt.Errorf("%w: pass turn in %s", ErrWrongPhase, c.Phase())
	}
	c.turnQueue = c.turnQueue[:0]
	for _, agent := range c.party {
		c.turnQueue = append(c.turnQueue, agent.Name)
	}
	c.persist()
	return nil
}

// NextAgent exposes the head-of-queue agent.
func (c *Controller) NextAgent() (string, bool) {
	if len(c.turnQueue) == 0 {
		return "", false
	}
	return c.turnQueue[0], true
}

// AdvanceAgent processes the head-of-queue agent's turn: the agent
// proposes an action, the Keeper resolves it. If the resolution
// demands a roll the queue is NOT popped; the agent's turn stays in
// flight until the roll resolves. A queue entry naming an unknown
// agent is dropped.
func (c *Controller) AdvanceAgent(ctx context.Context) (string, error) {
	if c.Phase() != PhaseAgentActing {
		return "", fmt.Errorf("%w: agent advance in %s", ErrWrongPhase, c.Phase())
	}

	name := c.turnQueue[0]
	agent := c.agentByName(name)
	if agent == nil {
		c.logger.Warn().Str("agent", name).Msg("unknown agent in turn queue, dropping")
		c.turnQueue = c.turnQueue[1:]
		c.persist()
		return "", nil
	}

	action := agent.GenerateAction(ctx, c.keeper.LatestScene(), c.mem)
	c.append("agent", action)

	raw, err := c.keeper.GenerateNarrative(ctx, fmt.Sprintf("Resolution: %s", action))
	if err != nil {
		return "", err
	}
	if keeper.DemandsRoll(raw) {
		c.pendingRoll = true
	} else {
		c.turnQueue = c.turnQueue[1:]
	}
	display := keeper.StripRollToken(raw)
	c.append("keeper", display)

	c.recordExchange(ctx, action, display)
	c.persist()
	return display, nil
}

func (c *Controller) agentByName(name string) *agents.Investigator {
	for _, agent := range c.party {
		if agent.Name == name {
			return agent
		}
	}
	return nil
}

// recordExchange feeds an input/narration pair into short-term memory
// and condenses it into global context once the buffer crosses its
// threshold. Memory trouble never fails the turn.
func (c *Controller) recordExchange(ctx context.Context, input, narration string) {
	if c.mem == nil {
		return
	}
	if err := c.mem.AppendToBuffer("user", input); err != nil {
		c.logger.Warn().Err(err).Msg("buffer append failed")
	}
	if err := c.mem.AppendToBuffer("keeper", narration); err != nil {
		c.logger.Warn().Err(err).Msg("buffer append failed")
	}
	if err := c.mem.AdvanceTurn(); err != nil {
		c.logger.Warn().Err(err).Msg("turn advance failed")
	}
	if c.mem.ShouldSummarize() {
		if err := c.CondenseMemory(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("memory condensation failed")
		}
	}
}

// CondenseMemory summarizes the short-term buffer into the global
// context and clears it. A no-op when the buffer is below threshold.
func (c *Controller) CondenseMemory(ctx context.Context) error {
	if c.mem == nil || !c.mem.ShouldSummarize() {
		return nil
	}
	update, err := c.keeper.SummarizeBuffer(ctx, c.mem.BufferContent())
	if err != nil {
		return err
	}
	if err := c.mem.UpdateGlobalContext(update); err != nil {
		return err
	}
	return c.mem.ClearBuffer()
}

// Snapshot captures the durable session state.
func (c *Controller) Snapshot() *SessionState {
	agentStates := make(map[string]AgentState, len(c.party))
	for _, agent := range c.party {
		agentStates[agent.Name] = AgentState{
			Inventory: agent.Inventory(),
			Stats: AgentStats{
				Sanity: agent.Sanity(),
				Skills: agent.Skills(),
			},
		}
	}
	return &SessionState{
		History:     c.Transcript(),
		Agents:      agentStates,
		TurnQueue:   c.TurnQueue(),
		PendingRoll: c.pendingRoll,
	}
}

func (c *Controller) persist() {
	if c.savePath == "" {
		return
	}
	if err := c.Snapshot().Save(c.savePath); err != nil {
		c.logger.Error().Err(err).Str("path", c.savePath).Msg("session save failed")
	}
}

// Restore rebuilds controller, Keeper timeline, and agent sheets from
// a snapshot. No oracle calls are made: the narrative history is
// replayed from the persisted transcript.
func (c *Controller) Restore(state *SessionState) {
	c.transcript = append([]TranscriptEntry(nil), state.History...)
	c.turnQueue = append([]string(nil), state.TurnQueue...)
	c.pendingRoll = state.PendingRoll

	var entries []keeper.NarrativeEntry
	for _, msg := range state.History {
		if msg.Role == "keeper" {
			entries = append(entries, keeper.NarrativeEntry{Description: msg.Content})
		}
	}
	c.keeper.RestoreHistory(entries)

	for _, agent := range c.party {
		saved, ok := state.Agents[agent.Name]
		if !ok {
			continue
		}
		agent.SetInventory(saved.Inventory)
		agent.SetSanity(saved.Stats.Sanity)
	}
}
