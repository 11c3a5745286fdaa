package agent

import (
	"fmt"
	"math/rand"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/llm"
	"github.com/jllopis/relay/pkg/session"
	"github.com/jllopis/relay/pkg/tools"
)

// Game stage names.
const (
	StageNarrator = "narrator"
	StageMonster  = "monster"
	StageItem     = "item"
)

const gameSystem = "You are the game master of a fantasy text adventure. Answer with a single JSON object and nothing else."

func gameRequest(in handoff.StageInput) (*session.GameRequest, error) {
	if in.Request.Game == nil {
		return nil, errors.Validation("game", "game request is missing")
	}
	return in.Request.Game, nil
}

var narratorPrompt = prompt(StageNarrator, `{{.Request.PlayerName}} (level {{.Request.Level}}) is at {{.Request.Location}} and does: {{.Request.Action}}
Something happens: {{.Event.Description}} ({{.Event.Type}}, severity {{.Event.Severity}}/10)
Narrate the scene in two or three sentences.
Reply as {"narration": "...", "choices": ["..."]}.`)

// NewNarratorAgent narrates the outcome of the player's action. The event
// kind is drawn from the action before the model is asked, so whether
// combat follows never depends on the model.
func NewNarratorAgent(client llm.Client, opts ...Option) *ModelAgent {
	return New(Spec{
		Stage:   StageNarrator,
		Role:    "NarratorAgent",
		System:  gameSystem,
		Prompt:  narratorPrompt,
		Prepare: prepareNarrator,
	}, client, opts...)
}

func prepareNarrator(rng *rand.Rand, in handoff.StageInput) (*Draft, error) {
	req, err := gameRequest(in)
	if err != nil {
		return nil, err
	}
	kind := tools.EventKindForAction(rng, req.Action)
	event := tools.GenerateEvent(rng, kind)

	return &Draft{
		Payload: session.Payload{
			"action":     req.Action,
			"location":   req.Location,
			"event":      jsonValue(event),
			"event_type": kind,
			"combat":     kind == tools.EventCombat,
		},
		PromptData: struct {
			Request *session.GameRequest
			Event   tools.Event
		}{req, event},
		Apply: func(p session.Payload, reply map[string]any) error {
			narration := str(reply, "narration")
			if narration == "" {
				return fmt.Errorf("reply has no narration")
			}
			p["narration"] = narration
			p["choices"] = stringsValue(stringList(list(reply, "choices")))
			return nil
		},
		Mock: func(p session.Payload) error {
			p["narration"] = fmt.Sprintf("%s decides to %s at %s. %s",
				req.PlayerName, req.Action, req.Location, event.Description)
			p["choices"] = stringsValue([]string{"Press on", "Look around", "Rest"})
			return nil
		},
	}, nil
}

// HitThreshold is the d20 plus level total needed to land a blow.
const HitThreshold = 10

var monsterPrompt = prompt(StageMonster, `{{.Request.PlayerName}} (level {{.Request.Level}}) fights a {{.Monster.Name}} (level {{.Monster.Level}}, {{.Monster.Health}} HP).
{{.Roll.Description}}. {{if .Hit}}{{.Damage.Description}}.{{else}}The attack misses.{{end}}
{{if .Defeated}}The monster falls.{{else}}The monster strikes back for {{.Taken}} damage.{{end}}
Describe the encounter in two sentences.
Reply as {"description": "..."}.`)

// NewMonsterAgent resolves a combat round with seeded dice and asks the
// model to describe it.
func NewMonsterAgent(client llm.Client, opts ...Option) *ModelAgent {
	return New(Spec{
		Stage:   StageMonster,
		Role:    "MonsterAgent",
		System:  gameSystem,
		Prompt:  monsterPrompt,
		Prepare: prepareMonster,
	}, client, opts...)
}

// Round is one resolved combat exchange.
type Round struct {
	Monster  tools.Monster
	Roll     tools.DiceRoll
	Hit      bool
	Damage   tools.Damage
	Defeated bool
	Taken    int
	XP       int
}

// ResolveRound spawns a monster for level and plays one exchange: a d20
// plus level of at least HitThreshold hits, and a monster left standing
// strikes back.
func ResolveRound(rng *rand.Rand, level, weapon int) (Round, error) {
	r := Round{Monster: tools.SpawnMonster(rng, level)}
	roll, err := tools.RollDice(rng, 20, 1)
	if err != nil {
		return r, err
	}
	r.Roll = roll
	r.Hit = roll.Total+level >= HitThreshold
	if r.Hit {
		r.Damage = tools.CombatDamage(rng, level, weapon)
		r.Defeated = r.Damage.Damage >= r.Monster.Health
	}
	if r.Defeated {
		r.XP = r.Monster.Level * 25
	} else {
		r.XP = r.Monster.Level * 5
		r.Taken = 1 + rng.Intn(r.Monster.Level*3)
	}
	return r, nil
}

func prepareMonster(rng *rand.Rand, in handoff.StageInput) (*Draft, error) {
	req, err := gameRequest(in)
	if err != nil {
		return nil, err
	}
	if _, ok := in.Result(StageNarrator); !ok {
		return nil, errors.Pipeline(StageNarrator, "narrator result is missing for monster")
	}
	round, err := ResolveRound(rng, req.Level, req.WeaponPower)
	if err != nil {
		return nil, err
	}

	payload := session.Payload{
		"monster":      jsonValue(round.Monster),
		"roll":         jsonValue(round.Roll),
		"hit":          round.Hit,
		"defeated":     round.Defeated,
		"damage_dealt": float64(round.Damage.Damage),
		"critical":     round.Damage.Critical,
		"damage_taken": float64(round.Taken),
		"xp":           float64(round.XP),
	}
	return &Draft{
		Payload: payload,
		PromptData: struct {
			Round
			Request *session.GameRequest
		}{round, req},
		Apply: func(p session.Payload, reply map[string]any) error {
			desc := str(reply, "description")
			if desc == "" {
				return fmt.Errorf("reply has no description")
			}
			p["description"] = desc
			return nil
		},
		Mock: func(p session.Payload) error {
			desc := fmt.Sprintf("A %s attacks! %s.", round.Monster.Name, round.Roll.Description)
			switch {
			case round.Defeated:
				desc += fmt.Sprintf(" %s and the %s is defeated.", round.Damage.Description, round.Monster.Name)
			case round.Hit:
				desc += fmt.Sprintf(" %s but the %s strikes back for %d.", round.Damage.Description, round.Monster.Name, round.Taken)
			default:
				desc += fmt.Sprintf(" The attack misses and the %s strikes back for %d.", round.Monster.Name, round.Taken)
			}
			p["description"] = desc
			return nil
		},
	}, nil
}

var itemPrompt = prompt(StageItem, `{{.Request.PlayerName}} finds loot: {{.Loot.Description}} (rarity {{.Loot.Rarity}}).
Describe{{if .Loot.HasSpecialItem}} the {{.Loot.Item}} and{{end}} the find in one or two sentences.
Reply as {"description": "..."}.`)

// NewItemAgent rolls loot from the seeded table and asks the model to
// describe it.
func NewItemAgent(client llm.Client, opts ...Option) *ModelAgent {
	return New(Spec{
		Stage:   StageItem,
		Role:    "ItemAgent",
		System:  gameSystem,
		Prompt:  itemPrompt,
		Prepare: prepareItem,
	}, client, opts...)
}

func prepareItem(rng *rand.Rand, in handoff.StageInput) (*Draft, error) {
	req, err := gameRequest(in)
	if err != nil {
		return nil, err
	}
	level := req.Level
	if monster, ok := in.Result(StageMonster); ok {
		if l, ok := num(object(monster.Payload, "monster"), "level"); ok && l >= 1 {
			level = int(l)
		}
	}
	rarity := req.Rarity
	if rarity == "" {
		rarity = tools.RarityForLevel(rng, level)
	}
	loot := tools.GenerateLoot(rng, level, rarity)

	return &Draft{
		Payload: session.Payload{"loot": jsonValue(loot)},
		PromptData: struct {
			Request *session.GameRequest
			Loot    tools.Loot
		}{req, loot},
		Apply: func(p session.Payload, reply map[string]any) error {
			desc := str(reply, "description")
			if desc == "" {
				return fmt.Errorf("reply has no description")
			}
			p["description"] = desc
			return nil
		},
		Mock: func(p session.Payload) error {
			p["description"] = loot.Description + "."
			return nil
		},
	}, nil
}
