package handoff

import "strings"

var queryRoutes = []struct {
	stage    string
	keywords []string
}{
	{"career", []string{"career", "path", "field", "recommend"}},
	{"skill", []string{"skill", "learn", "roadmap", "training"}},
	{"job", []string{"job", "role", "position", "interview", "salary"}},
}

// RouteQuery picks the career stage that should answer a single free-form
// question. Rules are checked in order; unmatched queries go to "career".
func RouteQuery(query string) string {
	lower := strings.ToLower(query)
	for _, route := range queryRoutes {
		for _, kw := range route.keywords {
			if strings.Contains(lower, kw) {
				return route.stage
			}
		}
	}
	return "career"
}
