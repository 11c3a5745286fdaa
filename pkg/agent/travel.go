package agent

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/llm"
	"github.com/jllopis/relay/pkg/session"
	"github.com/jllopis/relay/pkg/tools"
)

// Travel stage names.
const (
	StageDestination = "destination"
	StageBooking     = "booking"
	StageExplore     = "explore"
)

const travelSystem = "You are a travel planning assistant. Answer with a single JSON object and nothing else."

var destinationPrompt = prompt(StageDestination, `Rank travel destinations for {{.Request.UserName}}.
Mood: {{.Request.Mood}}
Budget: {{.Request.Budget}}
Travelers: {{.Request.Travelers}}, nights: {{.Nights}}
{{- if .Request.Preferences}}
Preferences: {{join .Request.Preferences ", "}}{{end}}
{{- if .Request.SpecialRequirements}}
Special requirements: {{join .Request.SpecialRequirements ", "}}{{end}}

Candidates:
{{range .Candidates}}- {{.Destination.Name}} ({{.Destination.Country}}): {{.Destination.Description}}
{{end}}
Reply as {"destinations": [{"name": "...", "score": 0.0, "reasoning": "..."}]} using only candidate names, best first.`)

// NewDestinationAgent ranks catalogue destinations for the traveler's mood
// and budget. The model may reorder and explain the candidates; it cannot
// invent new ones.
func NewDestinationAgent(client llm.Client, opts ...Option) *ModelAgent {
	return New(Spec{
		Stage:   StageDestination,
		Role:    "DestinationAgent",
		System:  travelSystem,
		Prompt:  destinationPrompt,
		Prepare: prepareDestination,
	}, client, opts...)
}

func travelRequest(in handoff.StageInput) (*session.TravelRequest, error) {
	if in.Request.Travel == nil {
		return nil, errors.Validation("travel", "travel request is missing")
	}
	return in.Request.Travel, nil
}

func prepareDestination(_ *rand.Rand, in handoff.StageInput) (*Draft, error) {
	req, err := travelRequest(in)
	if err != nil {
		return nil, err
	}
	matches := tools.RankDestinations(req)
	if len(matches) == 0 {
		return nil, errors.Pipeline(StageDestination, fmt.Sprintf("no destination fits mood %q", req.Mood))
	}
	byName := make(map[string]tools.DestinationMatch, len(matches))
	for _, m := range matches {
		byName[strings.ToLower(m.Destination.Name)] = m
	}

	return &Draft{
		Payload: rankedPayload(matches),
		PromptData: struct {
			Request    *session.TravelRequest
			Nights     int
			Candidates []tools.DestinationMatch
		}{req, req.Nights(), matches},
		Apply: func(p session.Payload, reply map[string]any) error {
			var ranked []tools.DestinationMatch
			seen := make(map[string]bool)
			for _, item := range list(reply, "destinations") {
				obj, ok := item.(map[string]any)
				if !ok {
					continue
				}
				key := strings.ToLower(str(obj, "name"))
				m, ok := byName[key]
				if !ok || seen[key] {
					continue
				}
				seen[key] = true
				if score, ok := num(obj, "score"); ok && score >= 0 && score <= 1 {
					m.Score = score
				}
				if r := str(obj, "reasoning"); r != "" {
					m.Reasoning = r
				}
				ranked = append(ranked, m)
			}
			if len(ranked) == 0 {
				return fmt.Errorf("reply names none of the %d candidates", len(matches))
			}
			for k, v := range rankedPayload(ranked) {
				p[k] = v
			}
			return nil
		},
		Mock: func(session.Payload) error { return nil },
	}, nil
}

func rankedPayload(matches []tools.DestinationMatch) session.Payload {
	return session.Payload{
		"ranked": jsonValue(matches),
		"top":    matches[0].Destination.Name,
		"count":  float64(len(matches)),
	}
}

// topDestination reads the top ranked destination from the destination stage.
func topDestination(in handoff.StageInput, stage string) (string, error) {
	up, ok := in.Result(StageDestination)
	if !ok {
		return "", errors.Pipeline(StageDestination, "destination result is missing for "+stage)
	}
	top := str(up.Payload, "top")
	if top == "" {
		return "", errors.Pipeline(StageDestination, "destination result names no top destination")
	}
	return top, nil
}

var bookingPrompt = prompt(StageBooking, `Choose a flight and a hotel for a trip to {{.Destination}}.
Budget: {{.Request.Budget}}, travelers: {{.Request.Travelers}}, nights: {{.Nights}}

Flights:
{{range $i, $f := .Flights}}{{$i}}. {{$f.Airline}} {{$f.Number}} {{$f.From}}-{{$f.To}} {{$f.Cabin}}, {{$f.DurationH}}h, {{$f.Stops}} stops, ${{$f.Price}}
{{end}}
Hotels:
{{range $i, $h := .Hotels}}{{$i}}. {{$h.Name}}, rating {{$h.Rating}}, ${{$h.Price}}/night
{{end}}
Reply as {"flight_index": 0, "hotel_index": 0, "notes": "..."}.`)

// NewBookingAgent picks a flight and a hotel at the top destination.
func NewBookingAgent(client llm.Client, opts ...Option) *ModelAgent {
	return New(Spec{
		Stage:   StageBooking,
		Role:    "BookingAgent",
		System:  travelSystem,
		Prompt:  bookingPrompt,
		Prepare: prepareBooking,
	}, client, opts...)
}

func prepareBooking(rng *rand.Rand, in handoff.StageInput) (*Draft, error) {
	req, err := travelRequest(in)
	if err != nil {
		return nil, err
	}
	dest, err := topDestination(in, StageBooking)
	if err != nil {
		return nil, err
	}
	flights := tools.Flights(rng, tools.DefaultOrigin, dest, 5)
	hotels := tools.Hotels(rng, dest, req.Budget, 5)
	nights := req.Nights()

	choose := func(p session.Payload, fi, hi int, notes string) {
		f, h := flights[fi], hotels[hi]
		p["flight"] = jsonValue(f)
		p["hotel"] = jsonValue(h)
		p["total_cost"] = tools.TripTotal(f.Price, h.Price, req.Travelers, nights, tools.DailySpend(req.Budget))
		p["notes"] = notes
	}

	return &Draft{
		Payload: session.Payload{
			"destination":    dest,
			"nights":         float64(nights),
			"travelers":      float64(req.Travelers),
			"flight_options": float64(len(flights)),
			"hotel_options":  float64(len(hotels)),
		},
		PromptData: struct {
			Destination string
			Request     *session.TravelRequest
			Nights      int
			Flights     []tools.Flight
			Hotels      []tools.Hotel
		}{dest, req, nights, flights, hotels},
		Apply: func(p session.Payload, reply map[string]any) error {
			fi, ok := num(reply, "flight_index")
			if !ok || fi < 0 || int(fi) >= len(flights) {
				return fmt.Errorf("flight_index out of range")
			}
			hi, ok := num(reply, "hotel_index")
			if !ok || hi < 0 || int(hi) >= len(hotels) {
				return fmt.Errorf("hotel_index out of range")
			}
			choose(p, int(fi), int(hi), str(reply, "notes"))
			return nil
		},
		Mock: func(p session.Payload) error {
			best := 0
			for i, h := range hotels {
				if h.Rating > hotels[best].Rating {
					best = i
				}
			}
			choose(p, 0, best, fmt.Sprintf("Cheapest flight and best rated hotel in %s.", dest))
			return nil
		},
	}, nil
}

var explorePrompt = prompt(StageExplore, `Suggest things to do in {{.Destination}} for a {{.Request.Mood}} trip on a {{.Request.Budget}} budget.
{{- if .Hotel}}
The travelers stay at {{.Hotel}}.{{end}}
Reply as {"attractions": [{"name": "...", "category": "...", "tips": ["..."]}], "restaurants": [{"name": "...", "cuisine": "..."}], "tips": ["..."]}.`)

// NewExploreAgent suggests attractions and restaurants at the booked
// destination.
func NewExploreAgent(client llm.Client, opts ...Option) *ModelAgent {
	return New(Spec{
		Stage:   StageExplore,
		Role:    "ExploreAgent",
		System:  travelSystem,
		Prompt:  explorePrompt,
		Prepare: prepareExplore,
	}, client, opts...)
}

func prepareExplore(rng *rand.Rand, in handoff.StageInput) (*Draft, error) {
	req, err := travelRequest(in)
	if err != nil {
		return nil, err
	}
	var dest, hotel string
	if booking, ok := in.Result(StageBooking); ok {
		dest = str(booking.Payload, "destination")
		hotel = str(object(booking.Payload, "hotel"), "name")
	}
	if dest == "" {
		if dest, err = topDestination(in, StageExplore); err != nil {
			return nil, err
		}
	}

	return &Draft{
		Payload: session.Payload{"destination": dest},
		PromptData: struct {
			Destination string
			Hotel       string
			Request     *session.TravelRequest
		}{dest, hotel, req},
		Apply: func(p session.Payload, reply map[string]any) error {
			attractions := list(reply, "attractions")
			if len(attractions) == 0 {
				return fmt.Errorf("reply lists no attractions")
			}
			p["attractions"] = attractions
			p["restaurants"] = list(reply, "restaurants")
			p["tips"] = stringsValue(stringList(list(reply, "tips")))
			return nil
		},
		Mock: func(p session.Payload) error {
			p["attractions"] = jsonValue(tools.Attractions(rng, dest, req.Mood, 6))
			p["restaurants"] = jsonValue(tools.Restaurants(rng, dest, 4))
			p["tips"] = stringsValue([]string{
				"Buy a local transit pass on arrival",
				fmt.Sprintf("Plan %s activities for the mornings", req.Mood),
			})
			return nil
		},
	}, nil
}

// stringsValue stores a string slice in its JSON shape.
func stringsValue(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
