package tools

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/jllopis/relay/pkg/session"
)

// DefaultOrigin is the departure city used for mock flights.
const DefaultOrigin = "New York"

// Destination is an entry of the mock destination catalogue.
type Destination struct {
	Name        string         `json:"name"`
	Country     string         `json:"country"`
	Description string         `json:"description"`
	BestTime    string         `json:"best_time_to_visit"`
	Temperature string         `json:"average_temperature"`
	Activities  []string       `json:"activities"`
	Moods       []session.Mood `json:"mood_suitability"`
	Budget      session.Budget `json:"budget_range"`
}

var destinations = []Destination{
	{
		Name: "Bali", Country: "Indonesia",
		Description: "Tropical paradise with beautiful beaches, temples, and culture",
		BestTime:    "April to October", Temperature: "26°C (79°F)",
		Activities: []string{"Beach relaxation", "Temple visits", "Rice terrace tours", "Water sports"},
		Moods:      []session.Mood{session.MoodRelaxation, session.MoodCulture, session.MoodBeach},
		Budget:     session.BudgetModerate,
	},
	{
		Name: "Tokyo", Country: "Japan",
		Description: "Modern metropolis blending technology with traditional culture",
		BestTime:    "March to May and September to November", Temperature: "15°C (59°F)",
		Activities: []string{"Sightseeing", "Shopping", "Food tours", "Temple visits"},
		Moods:      []session.Mood{session.MoodUrban, session.MoodCulture, session.MoodFood},
		Budget:     session.BudgetModerate,
	},
	{
		Name: "Paris", Country: "France",
		Description: "City of love with iconic landmarks and world-class cuisine",
		BestTime:    "April to June and September to October", Temperature: "12°C (54°F)",
		Activities: []string{"Museum visits", "Eiffel Tower", "Seine River cruise", "Shopping"},
		Moods:      []session.Mood{session.MoodCulture, session.MoodFood, session.MoodUrban},
		Budget:     session.BudgetModerate,
	},
	{
		Name: "New York", Country: "USA",
		Description: "The city that never sleeps with endless entertainment options",
		BestTime:    "April to June and September to November", Temperature: "13°C (55°F)",
		Activities: []string{"Broadway shows", "Museum visits", "Central Park", "Shopping"},
		Moods:      []session.Mood{session.MoodUrban, session.MoodCulture, session.MoodFood},
		Budget:     session.BudgetModerate,
	},
	{
		Name: "Swiss Alps", Country: "Switzerland",
		Description: "Breathtaking mountain scenery perfect for adventure and relaxation",
		BestTime:    "December to March (skiing) or June to September (hiking)", Temperature: "5°C (41°F)",
		Activities: []string{"Skiing", "Hiking", "Mountain biking", "Scenic train rides"},
		Moods:      []session.Mood{session.MoodAdventure, session.MoodMountains, session.MoodNature},
		Budget:     session.BudgetLuxury,
	},
	{
		Name: "Bangkok", Country: "Thailand",
		Description: "Street food capital with golden temples and lively markets",
		BestTime:    "November to February", Temperature: "29°C (84°F)",
		Activities: []string{"Street food tours", "Temple visits", "Floating markets", "Night markets"},
		Moods:      []session.Mood{session.MoodFood, session.MoodCulture, session.MoodUrban},
		Budget:     session.BudgetLow,
	},
	{
		Name: "Barcelona", Country: "Spain",
		Description: "Seaside city of Gaudí architecture, tapas and beaches",
		BestTime:    "May to June and September to October", Temperature: "18°C (64°F)",
		Activities: []string{"Architecture walks", "Beach days", "Tapas crawls", "Museum visits"},
		Moods:      []session.Mood{session.MoodBeach, session.MoodCulture, session.MoodFood},
		Budget:     session.BudgetModerate,
	},
	{
		Name: "Sydney", Country: "Australia",
		Description: "Harbour city with surf beaches and coastal walks",
		BestTime:    "September to November and March to May", Temperature: "22°C (72°F)",
		Activities: []string{"Surfing", "Coastal hikes", "Harbour cruise", "Wildlife parks"},
		Moods:      []session.Mood{session.MoodBeach, session.MoodAdventure, session.MoodNature},
		Budget:     session.BudgetLuxury,
	},
}

var airports = map[string]string{
	"New York": "JFK", "London": "LHR", "Paris": "CDG", "Tokyo": "NRT", "Dubai": "DXB",
	"Singapore": "SIN", "Bangkok": "BKK", "Sydney": "SYD", "Rome": "FCO", "Barcelona": "BCN",
	"Bali": "DPS", "Swiss Alps": "ZRH",
}

var budgetRank = map[session.Budget]int{
	session.BudgetLow:      1,
	session.BudgetModerate: 2,
	session.BudgetLuxury:   3,
}

// Destinations returns a copy of the catalogue.
func Destinations() []Destination {
	out := make([]Destination, len(destinations))
	copy(out, destinations)
	return out
}

// FindDestination looks a catalogue entry up by name, case-insensitively.
func FindDestination(name string) (Destination, bool) {
	for _, d := range destinations {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Destination{}, false
}

// DestinationMatch is a scored catalogue entry.
type DestinationMatch struct {
	Destination Destination  `json:"destination"`
	Score       float64      `json:"match_score"`
	Reasoning   string       `json:"reasoning"`
	Cost        CostEstimate `json:"estimated_cost"`
}

// RankDestinations scores the catalogue against a request and returns the
// matches best first. Destinations that fit both mood and budget come
// first; when none do, anything scoring above 0.3 is offered instead.
func RankDestinations(req *session.TravelRequest) []DestinationMatch {
	var matches []DestinationMatch
	for _, d := range destinations {
		if hasMood(d, req.Mood) && budgetFits(d.Budget, req.Budget) {
			matches = append(matches, match(d, req))
		}
	}
	if len(matches) == 0 {
		for _, d := range destinations {
			if m := match(d, req); m.Score > 0.3 {
				matches = append(matches, m)
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Destination.Name < matches[j].Destination.Name
	})
	return matches
}

func match(d Destination, req *session.TravelRequest) DestinationMatch {
	return DestinationMatch{
		Destination: d,
		Score:       round2(Score(d, req)),
		Reasoning:   reasoning(d, req),
		Cost:        EstimateCost(d.Budget, req.Travelers, req.Nights()),
	}
}

// Score weighs mood (0.4), budget (0.3), named preferences (0.1 each) and
// special requirements matched by an activity (0.05 each), capped at 1.
func Score(d Destination, req *session.TravelRequest) float64 {
	score := 0.0
	if hasMood(d, req.Mood) {
		score += 0.4
	}
	if budgetFits(d.Budget, req.Budget) {
		score += 0.3
	}
	for _, pref := range req.Preferences {
		p := strings.ToLower(pref)
		if p != "" && (strings.Contains(strings.ToLower(d.Name), p) || strings.Contains(strings.ToLower(d.Country), p)) {
			score += 0.1
		}
	}
	for _, reqmt := range req.SpecialRequirements {
		r := strings.ToLower(reqmt)
		for _, a := range d.Activities {
			if r != "" && strings.Contains(strings.ToLower(a), r) {
				score += 0.05
				break
			}
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func hasMood(d Destination, m session.Mood) bool {
	for _, dm := range d.Moods {
		if dm == m {
			return true
		}
	}
	return false
}

// budgetFits reports whether a traveler on user can afford dest.
func budgetFits(dest, user session.Budget) bool {
	return budgetRank[dest] <= budgetRank[user]
}

func reasoning(d Destination, req *session.TravelRequest) string {
	var reasons []string
	if hasMood(d, req.Mood) {
		reasons = append(reasons, fmt.Sprintf("Perfect for %s travel", req.Mood))
	}
	if budgetFits(d.Budget, req.Budget) {
		reasons = append(reasons, fmt.Sprintf("Fits your %s budget", req.Budget))
	}
	if len(d.Activities) > 0 {
		n := min(3, len(d.Activities))
		reasons = append(reasons, "Offers activities like "+strings.Join(d.Activities[:n], ", "))
	}
	if len(reasons) == 0 {
		return "Good overall match for your preferences"
	}
	return strings.Join(reasons, "; ")
}

var dailyCosts = map[session.Budget]map[string]float64{
	session.BudgetLow:      {"accommodation": 50, "food": 30, "activities": 20},
	session.BudgetModerate: {"accommodation": 150, "food": 60, "activities": 50},
	session.BudgetLuxury:   {"accommodation": 400, "food": 120, "activities": 100},
}

// CostEstimate is a rough trip budget.
type CostEstimate struct {
	Daily     float64            `json:"daily_cost"`
	Total     float64            `json:"total_cost"`
	Breakdown map[string]float64 `json:"cost_breakdown"`
}

// EstimateCost prices a stay at a destination's budget level.
func EstimateCost(budget session.Budget, travelers, nights int) CostEstimate {
	costs, ok := dailyCosts[budget]
	if !ok {
		costs = dailyCosts[session.BudgetModerate]
	}
	breakdown := make(map[string]float64, len(costs))
	daily := 0.0
	for k, v := range costs {
		breakdown[k] = v
		daily += v
	}
	return CostEstimate{
		Daily:     daily,
		Total:     daily * float64(nights) * float64(max(travelers, 1)),
		Breakdown: breakdown,
	}
}

// DailySpend is what a traveler spends per day outside the hotel.
func DailySpend(budget session.Budget) float64 {
	costs, ok := dailyCosts[budget]
	if !ok {
		costs = dailyCosts[session.BudgetModerate]
	}
	return costs["food"] + costs["activities"]
}

// TripTotal adds flights for every traveler, the hotel for every night and
// daily spend for every traveler and night.
func TripTotal(flightPrice, hotelPerNight float64, travelers, nights int, daily float64) float64 {
	t := float64(max(travelers, 1))
	n := float64(nights)
	return round2(flightPrice*t + hotelPerNight*n + daily*t*n)
}

var (
	airlines    = []string{"Emirates", "Qatar Airways", "Singapore Airlines", "ANA", "Lufthansa", "British Airways", "Air France", "KLM", "Turkish Airlines", "Etihad"}
	flightCodes = []string{"EK", "QR", "SQ", "NH", "LH"}
	cabins      = []string{"Economy", "Premium Economy", "Business", "First"}
	hotelChains = []string{"Marriott", "Hilton", "Hyatt", "InterContinental", "Four Seasons", "Ritz-Carlton", "W Hotels", "Sheraton", "Westin", "Renaissance"}
	cuisines    = []string{"Italian", "French", "Japanese", "Thai", "Indian", "Chinese", "Mexican", "Mediterranean", "American", "Spanish", "Greek"}
)

// Flight is a mock flight option.
type Flight struct {
	Airline   string  `json:"airline"`
	Number    string  `json:"flight_number"`
	From      string  `json:"departure_airport"`
	To        string  `json:"arrival_airport"`
	Departure string  `json:"departure_time"`
	DurationH int     `json:"duration_hours"`
	Price     float64 `json:"price"`
	Stops     int     `json:"stops"`
	Cabin     string  `json:"cabin_class"`
	SeatsLeft int     `json:"available_seats"`
}

// Flights generates n options sorted by price. Prices follow
// (200 + 50*hours) * U(0.8, 1.5).
func Flights(rng *rand.Rand, origin, destination string, n int) []Flight {
	out := make([]Flight, 0, n)
	for i := 0; i < n; i++ {
		hour := between(rng, 6, 22)
		minute := pick(rng, []int{0, 15, 30, 45})
		hours := between(rng, 2, 12)
		f := Flight{
			Airline:   pick(rng, airlines),
			Number:    fmt.Sprintf("%s%d", pick(rng, flightCodes), between(rng, 100, 999)),
			From:      airport(origin, "JFK"),
			To:        airport(destination, "LHR"),
			Departure: fmt.Sprintf("%02d:%02d", hour, minute),
			DurationH: hours,
			Price:     round2(float64(200+hours*50) * uniform(rng, 0.8, 1.5)),
			Stops:     between(rng, 0, 2),
			Cabin:     pick(rng, cabins),
			SeatsLeft: between(rng, 5, 50),
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

func airport(city, fallback string) string {
	if code, ok := airports[city]; ok {
		return code
	}
	return fallback
}

var hotelRanges = map[session.Budget][2]float64{
	session.BudgetLow:      {50, 150},
	session.BudgetModerate: {150, 400},
	session.BudgetLuxury:   {400, 1000},
}

// HotelRange returns the nightly price range for a budget.
func HotelRange(b session.Budget) (float64, float64) {
	r, ok := hotelRanges[b]
	if !ok {
		r = hotelRanges[session.BudgetModerate]
	}
	return r[0], r[1]
}

// Hotel is a mock hotel option.
type Hotel struct {
	Name      string   `json:"name"`
	Location  string   `json:"location"`
	Rating    float64  `json:"rating"`
	Price     float64  `json:"price_per_night"`
	Amenities []string `json:"amenities"`
	Rooms     []string `json:"room_types"`
	Distance  string   `json:"distance_from_center"`
}

// Hotels generates n options within the budget range, cheapest first.
func Hotels(rng *rand.Rand, destination string, budget session.Budget, n int) []Hotel {
	lo, hi := HotelRange(budget)
	out := make([]Hotel, 0, n)
	for i := 0; i < n; i++ {
		amenities := []string{"WiFi", "Air Conditioning"}
		switch budget {
		case session.BudgetModerate:
			amenities = append(amenities, "Pool", "Restaurant", "Gym")
		case session.BudgetLuxury:
			amenities = append(amenities, "Spa", "Concierge", "Room Service", "Pool", "Restaurant", "Gym", "Business Center")
		}
		h := Hotel{
			Name:     fmt.Sprintf("%s %s", pick(rng, hotelChains), destination),
			Location: "Downtown " + destination,
			Price:    round2(uniform(rng, lo, hi)),
			Rating:   round1(uniform(rng, 3.0, 5.0)),
		}
		h.Amenities = append(amenities, sample(rng, []string{"Parking", "Shuttle", "Bar", "Laundry"}, between(rng, 0, 2))...)
		h.Rooms = sample(rng, []string{"Standard", "Deluxe", "Suite", "Executive"}, between(rng, 2, 4))
		h.Distance = fmt.Sprintf("%d km", between(rng, 1, 10))
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

var moodAttractions = map[session.Mood][]string{
	session.MoodAdventure:  {"Mountain", "Park", "Beach", "Historical Site"},
	session.MoodRelaxation: {"Beach", "Garden", "Park", "Spa"},
	session.MoodCulture:    {"Museum", "Historical Site", "Temple", "Castle"},
	session.MoodFood:       {"Market", "Restaurant District", "Food Tour"},
	session.MoodNature:     {"Park", "Garden", "Mountain", "Beach"},
	session.MoodUrban:      {"Shopping District", "Museum", "Market", "Historical Site"},
	session.MoodBeach:      {"Beach", "Water Sports", "Marina"},
	session.MoodMountains:  {"Mountain", "Park", "Hiking Trail"},
}

var attractionNames = map[string][]string{
	"Museum":            {"%s National Museum", "Modern Art Gallery", "History Museum"},
	"Historical Site":   {"Ancient Ruins", "Historic District", "Old Town"},
	"Park":              {"Central Park", "Botanical Gardens", "City Park"},
	"Beach":             {"Golden Beach", "Crystal Bay", "Sunset Beach"},
	"Mountain":          {"Peak View", "Mountain Trail", "Summit Point"},
	"Shopping District": {"Shopping Mall", "Market Street", "Boutique District"},
	"Temple":            {"Ancient Temple", "Peace Pagoda", "Meditation Center"},
	"Castle":            {"Royal Castle", "Fortress", "Palace"},
	"Garden":            {"Botanical Gardens", "Zen Garden", "Flower Park"},
	"Market":            {"Local Market", "Artisan Market", "Food Market"},
}

var visitTips = []string{
	"Visit early to avoid crowds",
	"Bring comfortable shoes",
	"Don't forget your camera",
	"Check the weather forecast",
	"Book tickets in advance",
}

// Attraction is a mock point of interest.
type Attraction struct {
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Rating     float64  `json:"rating"`
	PriceRange string   `json:"price_range"`
	BestTime   string   `json:"best_time_to_visit"`
	Tips       []string `json:"tips"`
}

// Attractions generates n attractions whose categories follow the mood.
func Attractions(rng *rand.Rand, destination string, mood session.Mood, n int) []Attraction {
	categories, ok := moodAttractions[mood]
	if !ok {
		categories = []string{"Museum", "Historical Site", "Park", "Market"}
	}
	out := make([]Attraction, 0, n)
	for i := 0; i < n; i++ {
		cat := pick(rng, categories)
		name := fmt.Sprintf("%s in %s", cat, destination)
		if names, ok := attractionNames[cat]; ok {
			name = pick(rng, names)
			if strings.Contains(name, "%s") {
				name = fmt.Sprintf(name, destination)
			}
		}
		out = append(out, Attraction{
			Name:       name,
			Category:   cat,
			Rating:     round1(uniform(rng, 3.5, 5.0)),
			PriceRange: pick(rng, []string{"Free", "$", "$$", "$$$"}),
			BestTime:   pick(rng, []string{"Morning", "Afternoon", "Evening", "All day"}),
			Tips:       sample(rng, visitTips, between(rng, 2, 4)),
		})
	}
	return out
}

// Restaurant is a mock dining option.
type Restaurant struct {
	Name        string   `json:"name"`
	Cuisine     string   `json:"cuisine"`
	Rating      float64  `json:"rating"`
	PriceRange  string   `json:"price_range"`
	Specialties []string `json:"specialties"`
	Reservation bool     `json:"reservation_required"`
}

// Restaurants generates n dining options.
func Restaurants(rng *rand.Rand, destination string, n int) []Restaurant {
	names := []string{
		"La " + destination + " Bistro", destination + " Grill", "Spice Garden", "Ocean View",
		"Golden Dragon", "Pasta Palace", "Fresh Market", "Royal Kitchen", "Sunset Cafe", "Urban Eats",
	}
	specialties := []string{"Signature Pasta", "Fresh Seafood", "Local Specialties", "Chef's Special", "Seasonal Menu", "Traditional Dishes"}
	out := make([]Restaurant, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Restaurant{
			Cuisine:     pick(rng, cuisines),
			Name:        pick(rng, names),
			Rating:      round1(uniform(rng, 3.5, 5.0)),
			PriceRange:  pick(rng, []string{"$", "$$", "$$$", "$$$$"}),
			Specialties: sample(rng, specialties, between(rng, 2, 4)),
			Reservation: rng.Intn(2) == 1,
		})
	}
	return out
}
