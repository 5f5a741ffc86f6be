package models

import "sort"

// Skill is a declared, inheritable unit of agent functionality.
// Skills are loaded from per-directory declaration files; a skill
// declared closer to the residence overrides a same-ID ancestor skill.
type Skill struct {
	// ID is the unique identifier within a resolved index.
	ID string `json:"id" yaml:"id"`
	// Description explains what the skill does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// ResidencePath is the directory level the skill was declared at.
	ResidencePath string `json:"residence_path" yaml:"-"`
	// RequiredPrivilege is the minimum privilege needed to execute the skill.
	RequiredPrivilege Privilege `json:"required_privilege" yaml:"privilege"`
	// Requires is an optional capability the skill needs beyond its privilege.
	Requires Capability `json:"requires,omitempty" yaml:"requires,omitempty"`
	// EscalateIfMissing marks the skill as escalatable when Requires is
	// not granted, instead of being silently blocked.
	EscalateIfMissing bool `json:"escalate_if_missing,omitempty" yaml:"escalate_if_missing,omitempty"`
}

// SkillsIndex is the resolved skill set for a residence after
// inheritance and override-by-ID have been applied.
type SkillsIndex struct {
	// Residence is the residence the index was resolved for.
	Residence Residence `json:"residence"`
	// byID holds the winning declaration for each skill ID.
	byID map[string]Skill
}

// NewSkillsIndex creates an empty index for the given residence.
func NewSkillsIndex(residence Residence) *SkillsIndex {
	return &SkillsIndex{
		Residence: residence,
		byID:      make(map[string]Skill),
	}
}

// Put inserts or overrides the skill with the same ID. Later calls win,
// so callers must apply declarations in ancestor-first order.
func (idx *SkillsIndex) Put(skill Skill) {
	idx.byID[skill.ID] = skill
}

// Get returns the skill for the given ID.
func (idx *SkillsIndex) Get(id string) (Skill, bool) {
	s, ok := idx.byID[id]
	return s, ok
}

// Len returns the number of distinct skills in the index.
func (idx *SkillsIndex) Len() int {
	return len(idx.byID)
}

// Skills returns all skills ordered lexicographically by ID.
func (idx *SkillsIndex) Skills() []Skill {
	out := make([]Skill, 0, len(idx.byID))
	for _, s := range idx.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
