package models

import (
	"fmt"
	"strings"
)

// Residence is the validated, path-like identity of an agent. It is
// constructed once via ParseResidence and carries its precomputed
// Privilege so trust is never re-derived by ad hoc string matching.
type Residence struct {
	path      string
	segments  []string
	privilege Privilege
}

// ParseResidence validates and classifies a residence path.
// Paths are relative, slash-separated identifiers under the trust root.
// Absolute paths, traversal segments and empty paths are rejected.
func ParseResidence(path string) (Residence, error) {
	cleaned := strings.Trim(strings.ReplaceAll(path, "\\", "/"), "/")
	if cleaned == "" {
		return Residence{}, fmt.Errorf("residence path is empty")
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return Residence{}, fmt.Errorf("residence path %q is absolute", path)
	}
	if len(path) >= 2 && path[1] == ':' {
		return Residence{}, fmt.Errorf("residence path %q is absolute", path)
	}

	segments := strings.Split(cleaned, "/")
	for _, seg := range segments {
		if seg == "" || seg == "." {
			return Residence{}, fmt.Errorf("residence path %q has an empty segment", path)
		}
		if seg == ".." {
			return Residence{}, fmt.Errorf("residence path %q contains a traversal segment", path)
		}
	}

	return Residence{
		path:      strings.Join(segments, "/"),
		segments:  segments,
		privilege: classifySegments(segments),
	}, nil
}

// MustParseResidence is like ParseResidence but panics on error.
// Intended for tests and compile-time-known constants.
func MustParseResidence(path string) Residence {
	r, err := ParseResidence(path)
	if err != nil {
		panic(err)
	}
	return r
}

// classifySegments derives the trust level from path segments.
// A "root" segment wins over "specialist"; anything else is user.
// This is a structural boundary check on whole segments, not a
// substring comparison.
func classifySegments(segments []string) Privilege {
	privilege := PrivilegeUser
	for _, seg := range segments {
		switch strings.ToLower(seg) {
		case "root":
			return PrivilegeRoot
		case "specialist", "specialists":
			privilege = PrivilegeSpecialist
		}
	}
	return privilege
}

// String returns the normalized slash-separated path.
func (r Residence) String() string {
	return r.path
}

// IsZero returns true for the zero-value residence.
func (r Residence) IsZero() bool {
	return r.path == ""
}

// Privilege returns the trust level computed at construction.
func (r Residence) Privilege() Privilege {
	if r.path == "" {
		return PrivilegeUser
	}
	return r.privilege
}

// Segments returns a copy of the path segments from trust root to leaf.
func (r Residence) Segments() []string {
	out := make([]string, len(r.segments))
	copy(out, r.segments)
	return out
}

// Ancestry returns every residence prefix from the trust root down to
// the residence itself, in root-first order. Used by the skill loader
// to apply ancestor-first, child-override-by-id inheritance.
func (r Residence) Ancestry() []Residence {
	if r.path == "" {
		return nil
	}
	out := make([]Residence, 0, len(r.segments))
	for i := 1; i <= len(r.segments); i++ {
		segs := r.segments[:i]
		out = append(out, Residence{
			path:      strings.Join(segs, "/"),
			segments:  segs,
			privilege: classifySegments(segs),
		})
	}
	return out
}

// Under returns true if r equals other or lies beneath it.
func (r Residence) Under(other Residence) bool {
	if other.path == "" {
		return true
	}
	return r.path == other.path || strings.HasPrefix(r.path, other.path+"/")
}
