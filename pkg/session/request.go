// Package session holds the data model of a relay session: the immutable
// request, the coordinator-owned state, agent results, read-only views, the
// composite plan and the stores that persist them.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/jllopis/relay/pkg/errors"
)

// Domain selects the pipeline a request runs through.
type Domain string

const (
	DomainTravel Domain = "travel"
	DomainGame   Domain = "game"
	DomainCareer Domain = "career"
)

// Domains lists every supported domain.
var Domains = []Domain{DomainTravel, DomainGame, DomainCareer}

// Mood is the kind of trip a traveler is after.
type Mood string

const (
	MoodAdventure  Mood = "adventure"
	MoodRelaxation Mood = "relaxation"
	MoodCulture    Mood = "culture"
	MoodFood       Mood = "food"
	MoodNature     Mood = "nature"
	MoodUrban      Mood = "urban"
	MoodBeach      Mood = "beach"
	MoodMountains  Mood = "mountains"
)

// Moods lists the accepted moods.
var Moods = []Mood{MoodAdventure, MoodRelaxation, MoodCulture, MoodFood, MoodNature, MoodUrban, MoodBeach, MoodMountains}

// Budget is the spending level of a trip.
type Budget string

const (
	BudgetLow      Budget = "budget"
	BudgetModerate Budget = "moderate"
	BudgetLuxury   Budget = "luxury"
)

// Rarity grades loot.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Experience levels understood by the career pipeline.
const (
	ExperienceBeginner     = "beginner"
	ExperienceIntermediate = "intermediate"
	ExperienceAdvanced     = "advanced"
)

const dateLayout = "2006-01-02"

// DefaultTripNights is used when a travel request carries no dates.
const DefaultTripNights = 7

// Request is the user intent accepted into a session. Exactly one domain
// section is set. A Request is never mutated once a session owns it; Modify
// replaces it wholesale.
type Request struct {
	Domain Domain `json:"domain"`
	// Seed drives every random choice made by tool stages and mock data.
	Seed   int64          `json:"seed,omitempty"`
	Travel *TravelRequest `json:"travel,omitempty"`
	Game   *GameRequest   `json:"game,omitempty"`
	Career *CareerRequest `json:"career,omitempty"`
}

// TravelRequest describes a trip.
type TravelRequest struct {
	UserName            string   `json:"user_name,omitempty"`
	Preferences         []string `json:"destination_preferences,omitempty"`
	Mood                Mood     `json:"mood"`
	Budget              Budget   `json:"budget"`
	StartDate           string   `json:"start_date,omitempty"`
	EndDate             string   `json:"end_date,omitempty"`
	Travelers           int      `json:"num_travelers,omitempty"`
	SpecialRequirements []string `json:"special_requirements,omitempty"`
}

// GameRequest describes the player's next move.
type GameRequest struct {
	PlayerName  string `json:"player_name,omitempty"`
	Level       int    `json:"level,omitempty"`
	Action      string `json:"action"`
	Location    string `json:"location,omitempty"`
	WeaponPower int    `json:"weapon_power,omitempty"`
	Rarity      Rarity `json:"rarity,omitempty"`
}

// CareerRequest describes what the user wants guidance on.
type CareerRequest struct {
	Interests  []string `json:"interests,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Experience string   `json:"experience,omitempty"`
	Query      string   `json:"query,omitempty"`
}

// Normalize returns a deep copy with defaults filled in.
func (r Request) Normalize() Request {
	out := r.Clone()
	out.Domain = Domain(strings.ToLower(strings.TrimSpace(string(out.Domain))))
	if t := out.Travel; t != nil {
		t.Mood = Mood(strings.ToLower(strings.TrimSpace(string(t.Mood))))
		t.Budget = Budget(strings.ToLower(strings.TrimSpace(string(t.Budget))))
		if t.Travelers == 0 {
			t.Travelers = 1
		}
		if t.UserName == "" {
			t.UserName = "traveler"
		}
	}
	if g := out.Game; g != nil {
		if g.Level == 0 {
			g.Level = 1
		}
		if g.WeaponPower == 0 {
			g.WeaponPower = 1
		}
		if g.Location == "" {
			g.Location = "Starting Village"
		}
		if g.PlayerName == "" {
			g.PlayerName = "Adventurer"
		}
		g.Rarity = Rarity(strings.ToLower(string(g.Rarity)))
	}
	if c := out.Career; c != nil {
		c.Experience = strings.ToLower(strings.TrimSpace(c.Experience))
		if c.Experience == "" {
			c.Experience = ExperienceBeginner
		}
	}
	return out
}

// Validate rejects malformed requests with a VALIDATION_ERROR.
func (r Request) Validate() error {
	sections := 0
	for _, set := range []bool{r.Travel != nil, r.Game != nil, r.Career != nil} {
		if set {
			sections++
		}
	}
	if sections != 1 {
		return errors.Validation("domain", "request must carry exactly one domain section")
	}

	switch r.Domain {
	case DomainTravel:
		if r.Travel == nil {
			return errors.Validation("travel", "travel request is missing")
		}
		return r.Travel.validate()
	case DomainGame:
		if r.Game == nil {
			return errors.Validation("game", "game request is missing")
		}
		return r.Game.validate()
	case DomainCareer:
		if r.Career == nil {
			return errors.Validation("career", "career request is missing")
		}
		return r.Career.validate()
	default:
		return errors.Validation("domain", fmt.Sprintf("unknown domain %q", r.Domain))
	}
}

func (t *TravelRequest) validate() error {
	if !ValidMood(t.Mood) {
		return errors.Validation("mood", fmt.Sprintf("unknown mood %q", t.Mood))
	}
	switch t.Budget {
	case BudgetLow, BudgetModerate, BudgetLuxury:
	default:
		return errors.Validation("budget", fmt.Sprintf("unknown budget %q", t.Budget))
	}
	if t.Travelers < 1 {
		return errors.Validation("num_travelers", "at least one traveler is required")
	}
	start, end, err := t.dates()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return errors.Validation("end_date", "end date must be after start date")
	}
	return nil
}

func (t *TravelRequest) dates() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if t.StartDate != "" {
		if start, err = time.Parse(dateLayout, t.StartDate); err != nil {
			return start, end, errors.Validation("start_date", "start date must be YYYY-MM-DD")
		}
	}
	if t.EndDate != "" {
		if end, err = time.Parse(dateLayout, t.EndDate); err != nil {
			return start, end, errors.Validation("end_date", "end date must be YYYY-MM-DD")
		}
	}
	return start, end, nil
}

// Nights returns the trip length, DefaultTripNights when dates are incomplete.
func (t *TravelRequest) Nights() int {
	start, end, err := t.dates()
	if err != nil || start.IsZero() || end.IsZero() || !end.After(start) {
		return DefaultTripNights
	}
	return int(end.Sub(start).Hours() / 24)
}

func (g *GameRequest) validate() error {
	if strings.TrimSpace(g.Action) == "" {
		return errors.Validation("action", "a player action is required")
	}
	if g.Level < 1 {
		return errors.Validation("level", "level must be positive")
	}
	if g.WeaponPower < 0 {
		return errors.Validation("weapon_power", "weapon power cannot be negative")
	}
	switch g.Rarity {
	case "", RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
	default:
		return errors.Validation("rarity", fmt.Sprintf("unknown rarity %q", g.Rarity))
	}
	return nil
}

func (c *CareerRequest) validate() error {
	if len(c.Interests) == 0 && strings.TrimSpace(c.Query) == "" {
		return errors.Validation("interests", "interests or a query are required")
	}
	switch c.Experience {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced:
	default:
		return errors.Validation("experience", fmt.Sprintf("unknown experience level %q", c.Experience))
	}
	return nil
}

// ValidMood reports whether m is one of the accepted moods.
func ValidMood(m Mood) bool {
	for _, known := range Moods {
		if m == known {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the request.
func (r Request) Clone() Request {
	out := r
	if r.Travel != nil {
		t := *r.Travel
		t.Preferences = append([]string(nil), r.Travel.Preferences...)
		t.SpecialRequirements = append([]string(nil), r.Travel.SpecialRequirements...)
		out.Travel = &t
	}
	if r.Game != nil {
		g := *r.Game
		out.Game = &g
	}
	if r.Career != nil {
		c := *r.Career
		c.Interests = append([]string(nil), r.Career.Interests...)
		c.Skills = append([]string(nil), r.Career.Skills...)
		out.Career = &c
	}
	return out
}

// Fields flattens the request into dotted field names, e.g. "travel.mood".
// Stage definitions declare which of these they read.
func (r Request) Fields() map[string]any {
	data, err := json.Marshal(r)
	if err != nil {
		return map[string]any{}
	}
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return map[string]any{}
	}
	out := make(map[string]any)
	flatten("", raw, out)
	return out
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// ChangedFields lists the flattened fields that differ between two requests.
func ChangedFields(before, after Request) []string {
	a, b := before.Fields(), after.Fields()
	var changed []string
	for k, v := range a {
		if !reflect.DeepEqual(v, b[k]) {
			changed = append(changed, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}
