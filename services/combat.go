package services

import (
	"math"

	"resistance-server/models"
)

// Move is a PvP action a player can take on their turn.
type Move string

const (
	MoveStrike Move = "STRIKE"
	MoveSurge  Move = "SURGE"
	MoveBreach Move = "BREACH"
)

type moveSpec struct {
	power          float64
	elemental      bool
	ignoresDefense bool
}

var moveTable = map[Move]moveSpec{
	MoveStrike: {power: 40},
	MoveSurge:  {power: 60, elemental: true},
	MoveBreach: {power: 25, ignoresDefense: true},
}

func ParseMove(s string) (Move, bool) {
	m := Move(s)
	_, ok := moveTable[m]
	return m, ok
}

// Elements form a cycle: SIGNAL > STATIC > NOISE > SIGNAL.
const (
	ElementSignal = "SIGNAL"
	ElementStatic = "STATIC"
	ElementNoise  = "NOISE"
)

var beats = map[string]string{
	ElementSignal: ElementStatic,
	ElementStatic: ElementNoise,
	ElementNoise:  ElementSignal,
}

func ValidElement(e string) bool {
	_, ok := beats[e]
	return ok
}

// Effectiveness of an attacker element against a defender element.
func Effectiveness(attacker, defender string) float64 {
	switch {
	case beats[attacker] == defender:
		return 1.5
	case beats[defender] == attacker:
		return 0.5
	default:
		return 1.0
	}
}

const (
	minCritChance = 0.05
	maxCritChance = 0.25
	critFactor    = 1.5
)

// CritChance grows with the speed advantage, within [5%, 25%].
func CritChance(attackerSpeed, defenderSpeed int) float64 {
	c := minCritChance + float64(attackerSpeed-defenderSpeed)/200
	return math.Min(math.Max(c, minCritChance), maxCritChance)
}

// Hit is the server-resolved outcome of one move.
type Hit struct {
	Damage        int
	Effectiveness float64
	IsCrit        bool
}

// ResolveHit computes damage = max(1, floor(power*atk/(atk+def) * eff * crit)).
func ResolveHit(move Move, atk, def models.CombatStats, roll Roller) Hit {
	spec := moveTable[move]

	defense := float64(max(def.Defense, 0))
	if spec.ignoresDefense {
		defense = 0
	}
	attack := float64(max(atk.Attack, 0))
	raw := spec.power
	if attack+defense > 0 {
		raw = spec.power * attack / (attack + defense)
	}

	eff := 1.0
	if spec.elemental {
		eff = Effectiveness(atk.Element, def.Element)
	}

	crit := roll.Float64() < CritChance(atk.Speed, def.Speed)
	mult := 1.0
	if crit {
		mult = critFactor
	}

	dmg := int(math.Floor(raw * eff * mult))
	return Hit{Damage: max(dmg, 1), Effectiveness: eff, IsCrit: crit}
}
