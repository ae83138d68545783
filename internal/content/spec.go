// Package content defines the tailored content spec the analyzer produces
// and the deterministic gate that validates it against the evidence
// library before anything is rendered.
package content

// SkillGroup is one category of skills on the generated resume.
type SkillGroup struct {
	Category string   `json:"category"`
	Skills   []string `json:"skills"`
}

// ExperienceEntry is one employment entry in the generated resume. Bullets
// carry resolved verified content; BulletIDs keep the evidence references
// they were resolved from.
type ExperienceEntry struct {
	Company   string   `json:"company"`
	Location  string   `json:"location"`
	Title     string   `json:"title"`
	Period    string   `json:"period"`
	BulletIDs []string `json:"bullet_ids,omitempty"`
	Bullets   []string `json:"bullets"`
}

// ProjectEntry is one project entry in the generated resume.
type ProjectEntry struct {
	Title     string   `json:"title"`
	Period    string   `json:"period"`
	BulletIDs []string `json:"bullet_ids,omitempty"`
	Bullets   []string `json:"bullets"`
}

// Spec is the complete tailored content for one application: what the
// renderer turns into an artifact once it passes validation.
type Spec struct {
	Bio         string            `json:"bio"`
	Experiences []ExperienceEntry `json:"experiences"`
	Projects    []ProjectEntry    `json:"projects,omitempty"`
	Skills      []SkillGroup      `json:"skills"`
}

// Clone returns a deep copy. Validation corrects the copy, never the
// original.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	out := &Spec{Bio: s.Bio}

	out.Experiences = make([]ExperienceEntry, len(s.Experiences))
	for i, e := range s.Experiences {
		e.BulletIDs = append([]string(nil), e.BulletIDs...)
		e.Bullets = append([]string(nil), e.Bullets...)
		out.Experiences[i] = e
	}

	out.Projects = make([]ProjectEntry, len(s.Projects))
	for i, p := range s.Projects {
		p.BulletIDs = append([]string(nil), p.BulletIDs...)
		p.Bullets = append([]string(nil), p.Bullets...)
		out.Projects[i] = p
	}

	out.Skills = make([]SkillGroup, len(s.Skills))
	for i, g := range s.Skills {
		g.Skills = append([]string(nil), g.Skills...)
		out.Skills[i] = g
	}

	return out
}
