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

// Career stage names.
const (
	StageCareer = "career"
	StageSkill  = "skill"
	StageJob    = "job"
)

const careerSystem = "You are a career mentor. Answer with a single JSON object and nothing else."

func careerRequest(in handoff.StageInput) (*session.CareerRequest, error) {
	if in.Request.Career == nil {
		return nil, errors.Validation("career", "career request is missing")
	}
	return in.Request.Career, nil
}

// interestsOf falls back to the free-form query when no interests were given.
func interestsOf(req *session.CareerRequest) []string {
	if len(req.Interests) > 0 {
		return req.Interests
	}
	return strings.Fields(req.Query)
}

var careerPrompt = prompt(StageCareer, `Recommend career paths.
Interests: {{join .Interests ", "}}
{{- if .Request.Skills}}
Current skills: {{join .Request.Skills ", "}}{{end}}
Experience: {{.Request.Experience}}
{{- if .Request.Query}}
Question: {{.Request.Query}}{{end}}
Consider: {{join .Assessment.RecommendedCareers ", "}}
Reply as {"careers": [{"title": "...", "reason": "..."}]}, best first.`)

// NewCareerAgent recommends career fields from the user's interests.
func NewCareerAgent(client llm.Client, opts ...Option) *ModelAgent {
	return New(Spec{
		Stage:   StageCareer,
		Role:    "CareerAgent",
		System:  careerSystem,
		Prompt:  careerPrompt,
		Prepare: prepareCareer,
	}, client, opts...)
}

func prepareCareer(_ *rand.Rand, in handoff.StageInput) (*Draft, error) {
	req, err := careerRequest(in)
	if err != nil {
		return nil, err
	}
	interests := interestsOf(req)
	assessment := tools.AssessSkills(interests, req.Skills)

	return &Draft{
		Payload: session.Payload{
			"skill_gaps":          stringsValue(assessment.SkillGaps),
			"current_skill_level": float64(assessment.CurrentSkillLevel),
		},
		PromptData: struct {
			Request    *session.CareerRequest
			Interests  []string
			Assessment tools.Assessment
		}{req, interests, assessment},
		Apply: func(p session.Payload, reply map[string]any) error {
			var careers []any
			for _, item := range list(reply, "careers") {
				obj, ok := item.(map[string]any)
				if !ok || str(obj, "title") == "" {
					continue
				}
				careers = append(careers, map[string]any{
					"title":  str(obj, "title"),
					"reason": str(obj, "reason"),
				})
			}
			if len(careers) == 0 {
				return fmt.Errorf("reply recommends no careers")
			}
			p["careers"] = careers
			p["top"] = careers[0].(map[string]any)["title"]
			return nil
		},
		Mock: func(p session.Payload) error {
			careers := make([]any, 0, len(assessment.RecommendedCareers))
			for _, c := range assessment.RecommendedCareers {
				careers = append(careers, map[string]any{
					"title":  c,
					"reason": "Matches your interest in " + strings.Join(interests, ", "),
				})
			}
			p["careers"] = careers
			p["top"] = assessment.RecommendedCareers[0]
			return nil
		},
	}, nil
}

// topCareer reads the recommended career from upstream. A consult that runs
// a single stage has no upstream and assesses the request directly.
func topCareer(in handoff.StageInput, req *session.CareerRequest) string {
	if up, ok := in.Result(StageCareer); ok {
		if top := str(up.Payload, "top"); top != "" {
			return top
		}
	}
	return tools.AssessSkills(interestsOf(req), req.Skills).RecommendedCareers[0]
}

var skillPrompt = prompt(StageSkill, `Build a learning plan for a {{.Roadmap.Experience}} moving into {{.Roadmap.CareerField}}.
Current phase: {{.Roadmap.Current.Phase}}
Skills to cover: {{join .Roadmap.Current.Skills ", "}}
{{- if .Request.Skills}}
Already known: {{join .Request.Skills ", "}}{{end}}
Reply as {"advice": "...", "focus": ["..."]}.`)

// NewSkillAgent turns the top career into a learning roadmap.
func NewSkillAgent(client llm.Client, opts ...Option) *ModelAgent {
	return New(Spec{
		Stage:   StageSkill,
		Role:    "SkillAgent",
		System:  careerSystem,
		Prompt:  skillPrompt,
		Prepare: prepareSkill,
	}, client, opts...)
}

func prepareSkill(_ *rand.Rand, in handoff.StageInput) (*Draft, error) {
	req, err := careerRequest(in)
	if err != nil {
		return nil, err
	}
	roadmap := tools.CareerRoadmap(topCareer(in, req), req.Experience)

	return &Draft{
		Payload: session.Payload{
			"career":  roadmap.CareerField,
			"roadmap": jsonValue(roadmap),
		},
		PromptData: struct {
			Request *session.CareerRequest
			Roadmap tools.Roadmap
		}{req, roadmap},
		Apply: func(p session.Payload, reply map[string]any) error {
			advice := str(reply, "advice")
			if advice == "" {
				return fmt.Errorf("reply has no advice")
			}
			p["advice"] = advice
			p["focus"] = stringsValue(stringList(list(reply, "focus")))
			return nil
		},
		Mock: func(p session.Payload) error {
			p["advice"] = fmt.Sprintf("Work through the %s phase of %s, one project at a time.",
				roadmap.Current.Phase, roadmap.CareerField)
			p["focus"] = stringsValue(roadmap.Current.Skills[:min(3, len(roadmap.Current.Skills))])
			return nil
		},
	}, nil
}

var jobPrompt = prompt(StageJob, `Summarize the job market for {{.Insights.CareerField}}.
Entry roles: {{join .Insights.EntryRoles ", "}}
Senior roles: {{join .Insights.SeniorRoles ", "}}
Reply as {"summary": "...", "trends": ["..."]}.`)

// NewJobAgent reports market insights for the top career.
func NewJobAgent(client llm.Client, opts ...Option) *ModelAgent {
	return New(Spec{
		Stage:   StageJob,
		Role:    "JobAgent",
		System:  careerSystem,
		Prompt:  jobPrompt,
		Prepare: prepareJob,
	}, client, opts...)
}

func prepareJob(_ *rand.Rand, in handoff.StageInput) (*Draft, error) {
	req, err := careerRequest(in)
	if err != nil {
		return nil, err
	}
	insights := tools.CareerInsights(topCareer(in, req))

	return &Draft{
		Payload: session.Payload{
			"career":   insights.CareerField,
			"insights": jsonValue(insights),
		},
		PromptData: struct {
			Insights tools.JobInsights
		}{insights},
		Apply: func(p session.Payload, reply map[string]any) error {
			summary := str(reply, "summary")
			if summary == "" {
				return fmt.Errorf("reply has no summary")
			}
			p["summary"] = summary
			p["trends"] = stringsValue(stringList(list(reply, "trends")))
			return nil
		},
		Mock: func(p session.Payload) error {
			p["summary"] = fmt.Sprintf("%s roles start at %s. Companies hiring include %s.",
				insights.CareerField, insights.SalaryRanges["entry"],
				strings.Join(insights.Companies[:min(3, len(insights.Companies))], ", "))
			p["trends"] = stringsValue([]string{"Remote and hybrid roles", "Demand for cloud and AI skills"})
			return nil
		},
	}, nil
}
