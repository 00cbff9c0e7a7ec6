package models

// SkillParameter describes one named parameter of a skill's command
// template, as declared in SKILL.md front-matter.
type SkillParameter struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Default     any    `yaml:"default" json:"default,omitempty"`
	Required    bool   `yaml:"required" json:"required"`
	Type        string `yaml:"type" json:"type,omitempty"` // inferred if empty
	Enum        []string `yaml:"enum" json:"enum,omitempty"`
}

// SkillRequires gates a skill's eligibility to the local host.
type SkillRequires struct {
	OS  []string `yaml:"os" json:"os,omitempty"`
	Env []string `yaml:"env" json:"env,omitempty"`
	Bin []string `yaml:"bin" json:"bin,omitempty"`
}

// ParsedSkill is the decoded form of a SKILL.md file: front-matter plus
// Markdown body.
type ParsedSkill struct {
	Name            string           `yaml:"name" json:"name"`
	Description     string           `yaml:"description" json:"description"`
	Category        string           `yaml:"category" json:"category,omitempty"`
	Version         string           `yaml:"version" json:"version,omitempty"`
	Author          string           `yaml:"author" json:"author,omitempty"`
	Command         string           `yaml:"command" json:"command"`
	Parameters      []SkillParameter `yaml:"parameters" json:"parameters,omitempty"`
	Requires        *SkillRequires   `yaml:"requires" json:"requires,omitempty"`
	Body            string           `yaml:"-" json:"-"`
	Path            string           `yaml:"-" json:"-"`
}
