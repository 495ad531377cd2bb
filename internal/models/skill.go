package models

// SkillScope identifies where a skill document was resolved from.
type SkillScope string

const (
	SkillScopeGlobal SkillScope = "global"
	SkillScopeLocal  SkillScope = "local"
)

// Skill is a named persona document injected into a run's first prompt.
type Skill struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Content string     `json:"content"`
	Source  string     `json:"source,omitempty"`
	Scope   SkillScope `json:"scope,omitempty"`
}

// Validate checks if the skill is valid.
func (s *Skill) Validate() error {
	validation := &ValidationErrors{}
	if s.ID == "" {
		validation.Add("id", ErrInvalidSkillID)
	}
	if s.Name == "" {
		validation.AddMessage("name", "skill name is required")
	}
	return validation.Err()
}
