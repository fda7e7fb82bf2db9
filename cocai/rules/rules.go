// Package rules implements the percentile mechanics for skill checks and
// sanity checks: d100 rolls, outcome classification, and dice-notation
// sanity loss.
package rules

import (
	"errors"
	"math/rand"
	"regexp"
	"strconv"
)

// Outcome classifies a percentile roll against a skill rating.
type Outcome int

const (
	OutcomeFumble Outcome = iota
	OutcomeFailure
	OutcomeRegularSuccess
	OutcomeHardSuccess
	OutcomeExtremeSuccess
	OutcomeCriticalSuccess
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFumble:
		return "Fumble"
	case OutcomeFailure:
		return "Failure"
	case OutcomeRegularSuccess:
		return "Regular Success"
	case OutcomeHardSuccess:
		return "Hard Success"
	case OutcomeExtremeSuccess:
		return "Extreme Success"
	case OutcomeCriticalSuccess:
		return "Critical Success"
	default:
		return "Unknown"
	}
}

// IsSuccess reports whether the outcome counts as any grade of success.
func (o Outcome) IsSuccess() bool {
	return o >= OutcomeRegularSuccess
}

// ErrMalformedLossExpression indicates a sanity-loss expression that is
// neither dice notation ("1d6") nor a bare non-negative integer. This is
// a caller bug, not a runtime condition, and is never silently repaired.
var ErrMalformedLossExpression = errors.New("sanity loss must be dice notation (NdM) or a non-negative integer")

var diceExprPattern = regexp.MustCompile(`^(\d+)d(\d+)$`)

// DiceExpr is a parsed "NdM" expression.
type DiceExpr struct {
	Count int
	Sides int
}

// ParseDiceExpr parses "NdM" dice notation.
func ParseDiceExpr(expr string) (DiceExpr, error) {
	m := diceExprPattern.FindStringSubmatch(expr)
	if m == nil {
		return DiceExpr{}, ErrMalformedLossExpression
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return DiceExpr{}, ErrMalformedLossExpression
	}
	sides, err := strconv.Atoi(m[2])
	if err != nil {
		return DiceExpr{}, ErrMalformedLossExpression
	}
	if count < 1 || sides < 1 {
		return DiceExpr{}, ErrMalformedLossExpression
	}
	return DiceExpr{Count: count, Sides: sides}, nil
}

// CheckSuccess classifies a percentile roll against a skill level.
//
// A roll of 1 is always a critical, 100 always a fumble. Rolls of 96-99
// fumble only when the skill is below 50: with a high enough skill they
// are still evaluated by the straight roll-vs-skill comparison, so a
// skill of 96+ can turn a 96 into an ordinary success. Success grades
// use real division: extreme at one fifth of the skill, hard at half.
func CheckSuccess(skillLevel, roll int) Outcome {
	switch {
	case roll == 1:
		return OutcomeCriticalSuccess
	case roll == 100:
		return OutcomeFumble
	case roll >= 96 && skillLevel < 50:
		return OutcomeFumble
	}

	if roll <= skillLevel {
		switch {
		case float64(roll) <= float64(skillLevel)/5:
			return OutcomeExtremeSuccess
		case float64(roll) <= float64(skillLevel)/2:
			return OutcomeHardSuccess
		default:
			return OutcomeRegularSuccess
		}
	}
	return OutcomeFailure
}

// CheckResult pairs an outcome with the roll that produced it.
type CheckResult struct {
	Outcome Outcome
	Roll    int
}

// SanityResult captures one resolved sanity check.
type SanityResult struct {
	Roll      int
	Passed    bool
	Lost      int
	NewSanity int
}

// Engine draws dice from a seedable random source.
type Engine struct {
	d func(sides int) int
}

// NewEngine creates an engine seeded for reproducible rolls.
func NewEngine(seed int64) *Engine {
	rng := rand.New(rand.NewSource(seed))
	return &Engine{d: func(sides int) int { return rng.Intn(sides) + 1 }}
}

// RollPercentile draws a uniform integer over [1,100].
func (e *Engine) RollPercentile() int {
	return e.d(100)
}

// Check rolls a d100 and classifies it against the skill level.
func (e *Engine) Check(skillLevel int) CheckResult {
	roll := e.RollPercentile()
	return CheckResult{Outcome: CheckSuccess(skillLevel, roll), Roll: roll}
}

// SanityCheck rolls a d100 against the current sanity score. On failure
// the loss expression is resolved: dice notation is rolled, an integer
// literal is taken as-is. Sanity never drops below zero.
//
// The loss expression is validated up front, on success and failure
// alike, so a malformed expression fails loudly instead of lying dormant
// until a failed check trips over it.
func (e *Engine) SanityCheck(currentSanity int, lossExpr string) (SanityResult, error) {
	loss, err := e.parseLoss(lossExpr)
	if err != nil {
		return SanityResult{}, err
	}

	roll := e.RollPercentile()
	res := SanityResult{Roll: roll, Passed: roll <= currentSanity, NewSanity: currentSanity}
	if res.Passed {
		return res, nil
	}

	res.Lost = loss()
	res.NewSanity = currentSanity - res.Lost
	if res.NewSanity < 0 {
		res.NewSanity = 0
	}
	return res, nil
}

// parseLoss validates the expression and returns a thunk that resolves
// the loss amount, rolling dice only when actually invoked.
func (e *Engine) parseLoss(expr string) (func() int, error) {
	if n, err := strconv.Atoi(expr); err == nil {
		if n < 0 {
			return nil, ErrMalformedLossExpression
		}
		return func() int { return n }, nil
	}

	dice, err := ParseDiceExpr(expr)
	if err != nil {
		return nil, err
	}
	return func() int {
		total := 0
		for i := 0; i < dice.Count; i++ {
			total += e.d(dice.Sides)
		}
		return total
	}, nil
}
