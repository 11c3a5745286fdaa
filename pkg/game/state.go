// Package game keeps the player state that game sessions advance. Each
// completed game plan is one turn: combat experience, damage taken and
// loot are folded into the saved player.
package game

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/session"
	"github.com/jllopis/relay/pkg/tools"
)

const (
	StartingLocation = "Starting Village"
	startingHealth   = 100
	startingGold     = 50
	// healthPerLevel is added to max health on every level up.
	healthPerLevel = 20
)

// Player is the persistent character.
type Player struct {
	Name       string   `json:"name"`
	Level      int      `json:"level"`
	Health     int      `json:"health"`
	MaxHealth  int      `json:"max_health"`
	XP         int      `json:"experience"`
	Gold       int      `json:"gold"`
	Inventory  []string `json:"inventory"`
	Location   string   `json:"location"`
	Discovered []string `json:"discovered_locations"`
}

// State is the saved game.
type State struct {
	Player    Player    `json:"player"`
	Turns     int       `json:"turns"`
	Victories int       `json:"victories"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh level 1 character.
func New(name string) *State {
	if name == "" {
		name = "Adventurer"
	}
	return &State{Player: Player{
		Name:       name,
		Level:      1,
		Health:     startingHealth,
		MaxHealth:  startingHealth,
		Gold:       startingGold,
		Inventory:  []string{},
		Location:   StartingLocation,
		Discovered: []string{StartingLocation},
	}}
}

// XPToLevel is the experience needed to leave the current level.
func (p Player) XPToLevel() int {
	return p.Level * 100
}

// Request builds the next game request from the player's position.
func (s *State) Request(action string, weaponPower int, seed int64) session.Request {
	return session.Request{
		Domain: session.DomainGame,
		Seed:   seed,
		Game: &session.GameRequest{
			PlayerName:  s.Player.Name,
			Level:       s.Player.Level,
			Action:      action,
			Location:    s.Player.Location,
			WeaponPower: weaponPower,
		},
	}
}

// Outcome reports what one turn changed.
type Outcome struct {
	XPGained    int    `json:"xp_gained"`
	GoldGained  int    `json:"gold_gained"`
	Item        string `json:"item,omitempty"`
	DamageTaken int    `json:"damage_taken"`
	Defeated    bool   `json:"monster_defeated"`
	LeveledUp   bool   `json:"leveled_up"`
	Fallen      bool   `json:"fallen"`
}

type combatPayload struct {
	XP          float64 `json:"xp"`
	DamageTaken float64 `json:"damage_taken"`
	Defeated    bool    `json:"defeated"`
}

// Apply folds a completed game plan into the state.
func (s *State) Apply(plan session.CompositePlan, now time.Time) (Outcome, error) {
	var out Outcome
	if plan.Domain != session.DomainGame {
		return out, errors.Validation("domain", fmt.Sprintf("cannot apply a %s plan to a game", plan.Domain))
	}

	if p, ok := plan.Payload("narrator"); ok {
		if loc, _ := p["location"].(string); loc != "" {
			s.moveTo(loc)
		}
	}

	if p, ok := plan.Payload("monster"); ok {
		var c combatPayload
		if err := session.FromPayload(p, &c); err != nil {
			return out, errors.New(errors.CodeInvalidResponse, "unreadable combat result", err)
		}
		out.Defeated = c.Defeated
		out.DamageTaken = int(c.DamageTaken)
		out.XPGained = int(c.XP)
		if c.Defeated {
			s.Victories++
		}
		s.damage(out.DamageTaken)
		out.LeveledUp = s.addXP(out.XPGained)
	}

	if p, ok := plan.Payload("item"); ok {
		raw, _ := p["loot"].(map[string]any)
		var loot tools.Loot
		if err := session.FromPayload(raw, &loot); err != nil {
			return out, errors.New(errors.CodeInvalidResponse, "unreadable loot", err)
		}
		out.GoldGained = loot.Gold
		s.Player.Gold += loot.Gold
		if loot.HasSpecialItem && loot.Item != "" {
			out.Item = loot.Item
			s.Player.Inventory = append(s.Player.Inventory, loot.Item)
		}
	}

	if s.Player.Health == 0 {
		// A fallen player wakes up back in the village, healed.
		out.Fallen = true
		s.Player.Health = s.Player.MaxHealth
		s.moveTo(StartingLocation)
	}

	s.Turns++
	s.UpdatedAt = now
	return out, nil
}

func (s *State) damage(n int) {
	s.Player.Health -= n
	if s.Player.Health < 0 {
		s.Player.Health = 0
	}
}

// addXP reports whether the player leveled up. The surplus carries over.
func (s *State) addXP(n int) bool {
	s.Player.XP += n
	leveled := false
	for s.Player.XP >= s.Player.XPToLevel() {
		s.Player.XP -= s.Player.XPToLevel()
		s.Player.Level++
		s.Player.MaxHealth += healthPerLevel
		s.Player.Health = s.Player.MaxHealth
		leveled = true
	}
	return leveled
}

func (s *State) moveTo(loc string) {
	s.Player.Location = loc
	for _, d := range s.Player.Discovered {
		if d == loc {
			return
		}
	}
	s.Player.Discovered = append(s.Player.Discovered, loc)
}

// Load reads a saved game. A missing file yields a new character named name.
func Load(path, name string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return New(name), nil
		}
		return nil, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode save %s: %w", path, err)
	}
	if s.Player.Level < 1 {
		s.Player.Level = 1
	}
	if s.Player.Location == "" {
		s.Player.Location = StartingLocation
	}
	return &s, nil
}

// Save writes the game atomically.
func (s *State) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Status is a one-line summary for terminals.
func (p Player) Status() string {
	return fmt.Sprintf("%s | level %d | health %d/%d | xp %d/%d | gold %d | %s | %d items",
		p.Name, p.Level, p.Health, p.MaxHealth, p.XP, p.XPToLevel(), p.Gold, p.Location, len(p.Inventory))
}
