package plugins

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"roombot/internal/core/domain"
	"roombot/internal/core/services"
	apperrors "roombot/pkg/errors"
)

const (
	maxDice     = 20
	maxSides    = 1000
	maxModifier = 1000
)

var diceExpr = regexp.MustCompile(`^(\d*)[dD](\d+)(?:\s*([+-])\s*(\d+))?$`)

type diceRoll struct {
	count    int
	sides    int
	modifier int
}

func (r diceRoll) String() string {
	s := fmt.Sprintf("%dd%d", r.count, r.sides)
	switch {
	case r.modifier > 0:
		s += fmt.Sprintf("+%d", r.modifier)
	case r.modifier < 0:
		s += fmt.Sprintf("%d", r.modifier)
	}
	return s
}

// parseDice reads NdM[+K]. An empty expression rolls one six-sided die.
func parseDice(expr string) (diceRoll, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return diceRoll{count: 1, sides: 6}, nil
	}
	m := diceExpr.FindStringSubmatch(expr)
	if m == nil {
		return diceRoll{}, apperrors.Userf("I can't roll %q, try something like 2d6+1.", expr)
	}

	r := diceRoll{count: 1}
	if m[1] != "" {
		r.count, _ = strconv.Atoi(m[1])
	}
	r.sides, _ = strconv.Atoi(m[2])
	if m[4] != "" {
		k, _ := strconv.Atoi(m[4])
		if k > maxModifier {
			return diceRoll{}, apperrors.Userf("Modifiers go up to %d.", maxModifier)
		}
		if m[3] == "-" {
			k = -k
		}
		r.modifier = k
	}

	if r.count < 1 || r.count > maxDice {
		return diceRoll{}, apperrors.Userf("I can roll between 1 and %d dice.", maxDice)
	}
	if r.sides < 2 || r.sides > maxSides {
		return diceRoll{}, apperrors.Userf("Dice need between 2 and %d sides.", maxSides)
	}
	return r, nil
}

// Dice provides the roll command.
type Dice struct {
	intN func(n int) int
}

func NewDice() *Dice {
	return &Dice{intN: rand.Intn}
}

func (d *Dice) Name() string { return "dice" }

func (d *Dice) Cooldowns() []domain.CooldownDefinition {
	return []domain.CooldownDefinition{{
		TypeID:      "roll",
		DisplayName: "Dice",
		Personal:    domain.Since(3 * time.Second),
		Shared:      domain.Bucket(5, 2*time.Second),
	}}
}

func (d *Dice) Commands() map[string]services.Command {
	return map[string]services.Command{
		"roll": {
			Handler:      d.roll,
			Help:         "Roll some dice.",
			Usage:        "roll [N]dM[+K]",
			CooldownType: "roll",
		},
	}
}

func (d *Dice) roll(ctx context.Context, env *services.Env, call services.Call) error {
	r, err := parseDice(call.Args)
	if err != nil {
		return err
	}

	gate, err := env.Gate(ctx, call, services.GateSpec{Rank: domain.RankGuest, CooldownType: "roll"})
	if err != nil || !gate.Allowed() {
		return err
	}

	faces := make([]int, r.count)
	total := r.modifier
	for i := range faces {
		faces[i] = d.intN(r.sides) + 1
		total += faces[i]
	}
	return env.Say(ctx, fmt.Sprintf("%s rolled %s: %s", call.User, r, describeRoll(faces, r.modifier, total)))
}

func describeRoll(faces []int, modifier, total int) string {
	if len(faces) == 1 && modifier == 0 {
		return strconv.Itoa(total)
	}
	parts := make([]string, 0, len(faces)+1)
	for _, f := range faces {
		parts = append(parts, strconv.Itoa(f))
	}
	s := strings.Join(parts, " + ")
	switch {
	case modifier > 0:
		s += fmt.Sprintf(" + %d", modifier)
	case modifier < 0:
		s += fmt.Sprintf(" - %d", -modifier)
	}
	return fmt.Sprintf("%s = %d", s, total)
}
