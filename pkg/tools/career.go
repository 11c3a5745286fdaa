package tools

import (
	"sort"
	"strings"

	"github.com/jllopis/relay/pkg/session"
)

// RoadmapPhase is one experience level of a roadmap.
type RoadmapPhase struct {
	Phase     string   `json:"phase"`
	Skills    []string `json:"skills"`
	Projects  []string `json:"projects"`
	Resources []string `json:"resources"`
}

// Roadmap is a learning plan for a career field.
type Roadmap struct {
	CareerField string       `json:"career_field"`
	Experience  string       `json:"experience_level"`
	Current     RoadmapPhase `json:"current_phase"`
	NextSteps   []string     `json:"next_steps"`
}

var roadmaps = map[string]map[string]RoadmapPhase{
	"Software Development": {
		session.ExperienceBeginner: {
			Phase:     "Foundation (0-6 months)",
			Skills:    []string{"Programming Fundamentals (Python, JavaScript)", "Version Control (Git)", "Basic Data Structures & Algorithms", "Web Development Basics (HTML, CSS)", "Command Line Interface"},
			Projects:  []string{"Personal Portfolio Website", "Simple Calculator App", "Todo List Application"},
			Resources: []string{"freeCodeCamp.org", "The Odin Project", "Harvard CS50"},
		},
		session.ExperienceIntermediate: {
			Phase:     "Specialization (6-18 months)",
			Skills:    []string{"Advanced Programming Concepts", "Framework Mastery (React, Django, etc.)", "Database Design & Management", "API Development", "Testing & Debugging"},
			Projects:  []string{"Full-Stack Web Application", "RESTful API Service", "Database-Driven Application"},
			Resources: []string{"Real-world project experience", "Open source contributions", "Technical blogs and documentation"},
		},
		session.ExperienceAdvanced: {
			Phase:     "Expertise (18+ months)",
			Skills:    []string{"System Design & Architecture", "Cloud Computing (AWS, Azure, GCP)", "DevOps & CI/CD", "Performance Optimization", "Security Best Practices"},
			Projects:  []string{"Scalable Microservices Architecture", "Cloud-Native Applications", "Performance-Critical Systems"},
			Resources: []string{"System design interviews", "Advanced certifications", "Industry conferences"},
		},
	},
	"Data Science": {
		session.ExperienceBeginner: {
			Phase:     "Foundation (0-6 months)",
			Skills:    []string{"Python Programming", "Statistics Fundamentals", "Data Manipulation (Pandas, NumPy)", "Data Visualization (Matplotlib, Seaborn)", "SQL Basics"},
			Projects:  []string{"Data Analysis of Public Datasets", "Exploratory Data Analysis", "Simple Predictive Models"},
			Resources: []string{"Kaggle Learn", "DataCamp", "Towards Data Science"},
		},
		session.ExperienceIntermediate: {
			Phase:     "Machine Learning (6-18 months)",
			Skills:    []string{"Machine Learning Algorithms", "Scikit-learn Framework", "Feature Engineering", "Model Evaluation", "Data Preprocessing"},
			Projects:  []string{"Classification/Regression Models", "Natural Language Processing", "Computer Vision Projects"},
			Resources: []string{"Coursera ML Course", "Fast.ai", "Hands-on ML Book"},
		},
		session.ExperienceAdvanced: {
			Phase:     "Advanced ML & Production (18+ months)",
			Skills:    []string{"Deep Learning (TensorFlow, PyTorch)", "MLOps & Model Deployment", "Big Data Technologies", "Advanced Statistics", "Research & Innovation"},
			Projects:  []string{"Production ML Systems", "Research Papers Implementation", "Large-Scale Data Processing"},
			Resources: []string{"Research papers", "Advanced courses", "Industry projects"},
		},
	},
}

var genericRoadmap = map[string]RoadmapPhase{
	session.ExperienceBeginner: {
		Phase:     "Foundation (0-6 months)",
		Skills:    []string{"Industry Fundamentals", "Basic Tools & Software", "Core Concepts", "Entry-level Certifications", "Networking Basics"},
		Projects:  []string{"Portfolio Development", "Industry Research", "Skill Demonstration Projects"},
		Resources: []string{"Industry-specific courses", "Professional associations", "Mentorship programs"},
	},
	session.ExperienceIntermediate: {
		Phase:     "Specialization (6-18 months)",
		Skills:    []string{"Advanced Techniques", "Specialized Tools", "Industry Best Practices", "Leadership Skills", "Project Management"},
		Projects:  []string{"Complex Projects", "Team Leadership", "Innovation Initiatives"},
		Resources: []string{"Advanced certifications", "Industry conferences", "Professional development"},
	},
	session.ExperienceAdvanced: {
		Phase:     "Expertise (18+ months)",
		Skills:    []string{"Strategic Thinking", "Industry Innovation", "Thought Leadership", "Advanced Technologies", "Business Acumen"},
		Projects:  []string{"Strategic Initiatives", "Industry Publications", "Innovation Leadership"},
		Resources: []string{"Executive education", "Industry leadership", "Research & development"},
	},
}

var nextSteps = []string{
	"Choose a specific specialization within the field",
	"Set up a learning schedule and milestones",
	"Find mentors or join professional communities",
	"Start working on portfolio projects",
	"Apply for internships or entry-level positions",
}

// CareerRoadmap returns the roadmap phase for a field and experience level.
// Fields without a dedicated template get a generic plan.
func CareerRoadmap(field, experience string) Roadmap {
	phases, ok := roadmaps[field]
	if !ok {
		phases = genericRoadmap
	}
	phase, ok := phases[experience]
	if !ok {
		experience = session.ExperienceBeginner
		phase = phases[experience]
	}
	return Roadmap{
		CareerField: field,
		Experience:  experience,
		Current:     clonePhase(phase),
		NextSteps:   append([]string(nil), nextSteps...),
	}
}

func clonePhase(p RoadmapPhase) RoadmapPhase {
	return RoadmapPhase{
		Phase:     p.Phase,
		Skills:    append([]string(nil), p.Skills...),
		Projects:  append([]string(nil), p.Projects...),
		Resources: append([]string(nil), p.Resources...),
	}
}

// JobInsights summarizes the market for a field.
type JobInsights struct {
	CareerField  string            `json:"career_field"`
	EntryRoles   []string          `json:"entry_level_roles"`
	MidRoles     []string          `json:"mid_level_roles"`
	SeniorRoles  []string          `json:"senior_level_roles"`
	SalaryRanges map[string]string `json:"salary_ranges"`
	Companies    []string          `json:"companies"`
}

var insights = map[string]JobInsights{
	"Software Development": {
		EntryRoles:   []string{"Junior Developer", "Frontend Developer", "Backend Developer", "Full Stack Developer", "QA Engineer"},
		MidRoles:     []string{"Senior Developer", "Team Lead", "Software Architect", "DevOps Engineer", "Technical Lead"},
		SeniorRoles:  []string{"Principal Engineer", "Engineering Manager", "CTO", "Technical Director", "Software Architect"},
		SalaryRanges: map[string]string{"entry": "$50,000 - $80,000", "mid": "$80,000 - $130,000", "senior": "$130,000 - $200,000+"},
		Companies:    []string{"Google", "Microsoft", "Amazon", "Apple", "Meta", "Netflix", "Uber", "Airbnb", "Stripe", "Shopify"},
	},
	"Data Science": {
		EntryRoles:   []string{"Data Analyst", "Junior Data Scientist", "Business Intelligence Analyst", "Data Engineer", "Research Assistant"},
		MidRoles:     []string{"Data Scientist", "Senior Data Analyst", "Machine Learning Engineer", "Data Engineer", "Analytics Manager"},
		SeniorRoles:  []string{"Senior Data Scientist", "Lead Data Scientist", "Data Science Manager", "Chief Data Officer", "VP of Analytics"},
		SalaryRanges: map[string]string{"entry": "$60,000 - $90,000", "mid": "$90,000 - $140,000", "senior": "$140,000 - $200,000+"},
		Companies:    []string{"Netflix", "Spotify", "Uber", "Airbnb", "Google", "Amazon", "Microsoft", "Meta", "Apple", "LinkedIn"},
	},
}

// CareerInsights returns job market insights for a field.
func CareerInsights(field string) JobInsights {
	in, ok := insights[field]
	if !ok {
		in = JobInsights{
			EntryRoles:   []string{"Entry-level positions in the field", "Junior roles with training programs", "Assistant positions"},
			MidRoles:     []string{"Specialist positions", "Team lead roles", "Senior positions"},
			SeniorRoles:  []string{"Manager positions", "Director roles", "Executive positions"},
			SalaryRanges: map[string]string{"entry": "Varies by industry and location", "mid": "Varies by industry and location", "senior": "Varies by industry and location"},
			Companies:    []string{"Industry leaders", "Startups", "Consulting firms", "Government agencies"},
		}
	}
	out := JobInsights{
		CareerField:  field,
		EntryRoles:   append([]string(nil), in.EntryRoles...),
		MidRoles:     append([]string(nil), in.MidRoles...),
		SeniorRoles:  append([]string(nil), in.SeniorRoles...),
		SalaryRanges: make(map[string]string, len(in.SalaryRanges)),
		Companies:    append([]string(nil), in.Companies...),
	}
	for k, v := range in.SalaryRanges {
		out.SalaryRanges[k] = v
	}
	return out
}

var interestCareers = []struct {
	keyword string
	careers []string
}{
	{"programming", []string{"Software Development", "Data Science", "AI/ML Engineering"}},
	{"data", []string{"Data Science", "Business Intelligence", "Analytics"}},
	{"design", []string{"UX/UI Design", "Graphic Design", "Product Design"}},
	{"business", []string{"Product Management", "Business Administration", "Consulting"}},
	{"marketing", []string{"Digital Marketing", "Content Marketing", "Social Media"}},
	{"finance", []string{"Finance", "Investment Banking", "Financial Analysis"}},
	{"healthcare", []string{"Healthcare", "Medical Research", "Public Health"}},
	{"education", []string{"Education", "Training", "Curriculum Development"}},
}

// Assessment is the outcome of AssessSkills.
type Assessment struct {
	RecommendedCareers []string `json:"recommended_careers"`
	SkillGaps          []string `json:"skill_gaps"`
	CurrentSkillLevel  int      `json:"current_skill_level"`
}

// AssessSkills maps interests to career fields, ranked by how many
// interests point at them, and lists beginner skills the user lacks for
// the top three.
func AssessSkills(interests, skills []string) Assessment {
	hits := make(map[string]int)
	first := make(map[string]int)
	seq := 0
	for _, interest := range interests {
		lower := strings.ToLower(interest)
		for _, ic := range interestCareers {
			if !strings.Contains(lower, ic.keyword) {
				continue
			}
			for _, c := range ic.careers {
				if _, seen := first[c]; !seen {
					first[c] = seq
					seq++
				}
				hits[c]++
			}
		}
	}
	careers := make([]string, 0, len(hits))
	for c := range hits {
		careers = append(careers, c)
	}
	sort.Slice(careers, func(i, j int) bool {
		if hits[careers[i]] != hits[careers[j]] {
			return hits[careers[i]] > hits[careers[j]]
		}
		return first[careers[i]] < first[careers[j]]
	})
	if len(careers) == 0 {
		careers = []string{"Software Development", "Data Science", "Product Management"}
	}

	have := make(map[string]bool, len(skills))
	for _, s := range skills {
		have[strings.ToLower(strings.TrimSpace(s))] = true
	}
	var gaps []string
	seen := make(map[string]bool)
	for _, c := range careers[:min(3, len(careers))] {
		for _, s := range CareerRoadmap(c, session.ExperienceBeginner).Current.Skills {
			if !have[strings.ToLower(s)] && !seen[s] {
				seen[s] = true
				gaps = append(gaps, s)
			}
		}
	}
	if len(gaps) > 10 {
		gaps = gaps[:10]
	}
	if len(careers) > 5 {
		careers = careers[:5]
	}
	return Assessment{RecommendedCareers: careers, SkillGaps: gaps, CurrentSkillLevel: len(skills)}
}
