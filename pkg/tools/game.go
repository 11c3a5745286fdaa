package tools

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/session"
)

// DiceRoll is the outcome of RollDice.
type DiceRoll struct {
	Total       int    `json:"total"`
	Rolls       []int  `json:"rolls"`
	Sides       int    `json:"sides"`
	Count       int    `json:"count"`
	Description string `json:"description"`
}

// RollDice rolls count dice with the given number of sides.
func RollDice(rng *rand.Rand, sides, count int) (DiceRoll, error) {
	if sides < 2 {
		return DiceRoll{}, errors.Validation("sides", "dice must have at least 2 sides")
	}
	if count < 1 {
		return DiceRoll{}, errors.Validation("count", "must roll at least 1 die")
	}
	roll := DiceRoll{Sides: sides, Count: count, Rolls: make([]int, count)}
	parts := make([]string, count)
	for i := range roll.Rolls {
		roll.Rolls[i] = between(rng, 1, sides)
		roll.Total += roll.Rolls[i]
		parts[i] = fmt.Sprint(roll.Rolls[i])
	}
	roll.Description = fmt.Sprintf("Rolled %dd%d = [%s] (Total: %d)", count, sides, strings.Join(parts, ", "), roll.Total)
	return roll, nil
}

// CriticalChance is the probability that an attack deals double damage.
const CriticalChance = 0.05

// Damage is the outcome of CombatDamage.
type Damage struct {
	Damage      int    `json:"damage"`
	Critical    bool   `json:"is_critical"`
	Base        int    `json:"base_damage"`
	LevelBonus  int    `json:"level_bonus"`
	WeaponBonus int    `json:"weapon_bonus"`
	Description string `json:"description"`
}

// CombatDamage computes base 1-10, plus level*2, plus weapon*U(1..5),
// doubled on a critical hit.
func CombatDamage(rng *rand.Rand, level, weapon int) Damage {
	d := Damage{
		Base:        between(rng, 1, 10),
		LevelBonus:  level * 2,
		WeaponBonus: weapon * between(rng, 1, 5),
	}
	d.Damage = d.Base + d.LevelBonus + d.WeaponBonus
	d.Critical = rng.Float64() < CriticalChance
	if d.Critical {
		d.Damage *= 2
		d.Description = fmt.Sprintf("CRITICAL HIT! Dealt %d damage", d.Damage)
	} else {
		d.Description = fmt.Sprintf("Dealt %d damage", d.Damage)
	}
	return d
}

var rarityMultiplier = map[session.Rarity]int{
	session.RarityCommon:    1,
	session.RarityUncommon:  2,
	session.RarityRare:      3,
	session.RarityEpic:      5,
	session.RarityLegendary: 10,
}

var rarityItemChance = map[session.Rarity]float64{
	session.RarityCommon:    0.1,
	session.RarityUncommon:  0.3,
	session.RarityRare:      0.5,
	session.RarityEpic:      0.7,
	session.RarityLegendary: 0.9,
}

var specialItems = map[session.Rarity][]string{
	session.RarityCommon:    {"Worn Dagger", "Leather Cap", "Healing Herb"},
	session.RarityUncommon:  {"Steel Sword", "Chainmail Vest", "Potion of Vigor"},
	session.RarityRare:      {"Runed Blade", "Elven Cloak", "Ring of Warding"},
	session.RarityEpic:      {"Dragonbone Axe", "Mantle of Storms", "Amulet of Echoes"},
	session.RarityLegendary: {"Sunforged Greatsword", "Crown of the Ancients", "Phoenix Feather"},
}

// Loot is the outcome of GenerateLoot.
type Loot struct {
	Gold           int            `json:"gold"`
	Rarity         session.Rarity `json:"rarity"`
	HasSpecialItem bool           `json:"has_special_item"`
	Item           string         `json:"item,omitempty"`
	MonsterLevel   int            `json:"monster_level"`
	Description    string         `json:"description"`
}

// GenerateLoot rolls gold and a possible special item. Unknown rarities
// are treated as common.
func GenerateLoot(rng *rand.Rand, level int, rarity session.Rarity) Loot {
	if _, ok := rarityMultiplier[rarity]; !ok {
		rarity = session.RarityCommon
	}
	l := Loot{
		Rarity:       rarity,
		MonsterLevel: level,
		Gold:         between(rng, 1, 10) * level * rarityMultiplier[rarity],
	}
	l.HasSpecialItem = rng.Float64() < rarityItemChance[rarity]
	l.Description = fmt.Sprintf("Found %d gold pieces", l.Gold)
	if l.HasSpecialItem {
		l.Item = pick(rng, specialItems[rarity])
		l.Description += " and a " + l.Item
	}
	return l
}

// RarityForLevel suggests a loot grade when the request names none.
func RarityForLevel(rng *rand.Rand, level int) session.Rarity {
	roll := between(rng, 1, 20) + level
	switch {
	case roll >= 28:
		return session.RarityLegendary
	case roll >= 24:
		return session.RarityEpic
	case roll >= 19:
		return session.RarityRare
	case roll >= 14:
		return session.RarityUncommon
	default:
		return session.RarityCommon
	}
}

// Event kinds produced by GenerateEvent.
const (
	EventCombat      = "combat"
	EventExploration = "exploration"
	EventSocial      = "social"
	EventRandom      = "random"
)

var events = map[string][]string{
	EventCombat: {
		"A band of goblins emerges from the shadows!",
		"A fierce dragon blocks your path!",
		"Undead warriors rise from the ground!",
		"A pack of wolves surrounds you!",
		"A mysterious knight challenges you to combat!",
	},
	EventExploration: {
		"You discover a hidden cave entrance!",
		"Ancient ruins lie ahead!",
		"A magical portal appears before you!",
		"You find a mysterious artifact!",
		"A secret passage reveals itself!",
	},
	EventSocial: {
		"A friendly merchant offers you goods!",
		"A wise old sage shares ancient knowledge!",
		"A mysterious stranger approaches you!",
		"Villagers ask for your help!",
		"A royal messenger delivers important news!",
	},
	EventRandom: {
		"A sudden storm approaches!",
		"You hear distant music!",
		"A shooting star streaks across the sky!",
		"The ground begins to tremble!",
		"A magical aura surrounds you!",
	},
}

// Event is a generated world event.
type Event struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    int    `json:"severity"`
	Duration    int    `json:"duration"`
}

// GenerateEvent draws an event of kind; unknown kinds fall back to random.
func GenerateEvent(rng *rand.Rand, kind string) Event {
	if _, ok := events[kind]; !ok {
		kind = EventRandom
	}
	return Event{
		Type:        kind,
		Description: pick(rng, events[kind]),
		Severity:    between(rng, 1, 10),
		Duration:    between(rng, 1, 5),
	}
}

var actionKinds = []struct {
	kind     string
	keywords []string
}{
	{EventCombat, []string{"attack", "fight", "strike", "battle", "kill", "hunt", "charge"}},
	{EventSocial, []string{"talk", "ask", "trade", "buy", "sell", "greet", "persuade"}},
	{EventExploration, []string{"explore", "search", "look", "enter", "open", "climb", "walk", "go"}},
}

// EventKindForAction infers the kind of event an action is likely to
// trigger. Actions with no recognised verb draw a kind at random.
func EventKindForAction(rng *rand.Rand, action string) string {
	lower := strings.ToLower(action)
	for _, ak := range actionKinds {
		for _, kw := range ak.keywords {
			if strings.Contains(lower, kw) {
				return ak.kind
			}
		}
	}
	return pick(rng, []string{EventCombat, EventExploration, EventSocial, EventRandom})
}

var monsters = []struct {
	name string
	tier int
}{
	{"Goblin Scout", 1},
	{"Dire Wolf", 2},
	{"Skeleton Warrior", 3},
	{"Orc Berserker", 4},
	{"Troll", 6},
	{"Young Dragon", 9},
}

// Monster describes an opponent.
type Monster struct {
	Name   string `json:"name"`
	Level  int    `json:"level"`
	Health int    `json:"health"`
}

// SpawnMonster picks an opponent suited to the player's level.
func SpawnMonster(rng *rand.Rand, level int) Monster {
	var pool []string
	for _, m := range monsters {
		if m.tier <= level+1 {
			pool = append(pool, m.name)
		}
	}
	if len(pool) == 0 {
		pool = []string{monsters[0].name}
	}
	mlevel := level + between(rng, -1, 1)
	if mlevel < 1 {
		mlevel = 1
	}
	return Monster{
		Name:   pick(rng, pool),
		Level:  mlevel,
		Health: 20 + mlevel*10 + between(rng, 0, 10),
	}
}
