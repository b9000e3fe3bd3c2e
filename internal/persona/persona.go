package persona

import "podium/internal/models"

// Persona is a named panel role with a fixed behavioral profile. Catalogs are
// built once at process start and never mutated; sessions and turns reference
// personas by ID plus cached display fields, never by live pointer, so
// historical turns stay meaningful across catalog reloads.
type Persona struct {
	ID          string
	Name        string
	Role        string
	Personality string
	Style       string
}

// Catalog is an ordered, immutable set of personas.
type Catalog struct {
	name     string
	personas []Persona
}

func (c *Catalog) Name() string { return c.name }
func (c *Catalog) Size() int    { return len(c.personas) }

// At returns the persona at the given index (wrapping is the caller's job).
func (c *Catalog) At(i int) Persona { return c.personas[i] }

// ByID looks a persona up by its stable identifier.
func (c *Catalog) ByID(id string) (Persona, bool) {
	for _, p := range c.personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// Next returns the index of the persona that asks the question after a scored
// turn. Interviews keep the single interviewer; presentations advance through
// the panel round-robin, so the full panel is exhausted before anyone repeats.
func (c *Catalog) Next(current int) int {
	if len(c.personas) <= 1 {
		return 0
	}
	return (current + 1) % len(c.personas)
}

var interviewCatalog = &Catalog{
	name: "interview",
	personas: []Persona{
		{
			ID:          "hr-manager",
			Name:        "Mrs. Adebayo",
			Role:        "Senior HR Manager",
			Personality: "Warm but professional, values teamwork and culture fit. Starts friendly to make the candidate comfortable, then probes deeper.",
			Style:       "Mixes background and behavioral questions. Uses phrases like \"I hear you. But tell me...\" and \"Tell me about a time when\".",
		},
	},
}

// Board panel of 4, in fixed questioning order.
var presentationCatalog = &Catalog{
	name: "presentation",
	personas: []Persona{
		{
			ID:          "ceo",
			Name:        "Chief Okafor",
			Role:        "CEO",
			Personality: "Strategic, visionary, big-picture thinker. Direct and results-oriented.",
			Style:       "Challenges assumptions, asks about business metrics, ROI and strategic alignment. Uses phrases like \"Let me be direct\" and \"The bottom line is\".",
		},
		{
			ID:          "cfo",
			Name:        "Mrs. Adebayo",
			Role:        "CFO",
			Personality: "Analytical, numbers-focused, detail-oriented. Cautious about financial risks.",
			Style:       "Focuses on financials, projections, break-even timelines and ROI. Asks about budget breakdowns and assumptions.",
		},
		{
			ID:          "hr",
			Name:        "Mrs. Okonkwo",
			Role:        "HR Director",
			Personality: "People-focused, behavioral, culture guardian. Warm but thorough.",
			Style:       "Asks about teamwork, leadership style, conflict resolution and cultural alignment.",
		},
		{
			ID:          "cto",
			Name:        "Engr. Nnamdi",
			Role:        "CTO",
			Personality: "Technical, innovative, solution-driven. Precise and methodical.",
			Style:       "Probes technical depth, implementation details, scalability and integration challenges.",
		},
	},
}

// ForKind returns the catalog for a session kind: one interviewer for
// interviews, the four-member executive board for presentations.
func ForKind(kind string) *Catalog {
	if kind == models.KindPresentation {
		return presentationCatalog
	}
	return interviewCatalog
}
