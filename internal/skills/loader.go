// Package skills loads inherited skill declarations for a residence.
// Each directory level under the trust root may carry one declaration
// file; declarations closer to the residence override same-ID skills
// declared by ancestors.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/warden/pkg/models"
)

// DeclarationFileName is the per-directory skill descriptor file.
const DeclarationFileName = "skills.yaml"

// declarationFile is the YAML structure of a skill descriptor.
type declarationFile struct {
	Skills []models.Skill `yaml:"skills"`
}

// Loader resolves inherited skill indexes from declaration files under
// a trust root directory.
type Loader struct {
	trustRoot string
	debugLog  func(format string, args ...interface{})
}

// NewLoader creates a Loader rooted at the given directory.
// The trust root must exist and be a directory.
func NewLoader(trustRoot string) (*Loader, error) {
	info, err := os.Stat(trustRoot)
	if err != nil {
		return nil, models.NewCodedError(models.ErrInvalidRepoRoot, "trust root %s: %v", trustRoot, err)
	}
	if !info.IsDir() {
		return nil, models.NewCodedError(models.ErrInvalidRepoRoot, "trust root %s is not a directory", trustRoot)
	}
	return &Loader{
		trustRoot: trustRoot,
		debugLog:  func(format string, args ...interface{}) {},
	}, nil
}

// TrustRoot returns the root directory declarations are loaded from.
func (l *Loader) TrustRoot() string {
	return l.trustRoot
}

// SetDebugLog sets the debug logging function.
func (l *Loader) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		l.debugLog = fn
	}
}

// LoadInherited builds the SkillsIndex for a residence by collecting
// declaration files from the trust root down to the residence, applying
// ancestor declarations first so child declarations override by ID.
// A residence with no declarations anywhere on its path yields an
// empty index, not an error.
func (l *Loader) LoadInherited(residence models.Residence) (*models.SkillsIndex, error) {
	index := models.NewSkillsIndex(residence)

	for i, dir := range l.LevelDirs(residence) {
		declared, err := l.loadFile(filepath.Join(dir, DeclarationFileName))
		if err != nil {
			return nil, err
		}
		level := "<root>"
		if i > 0 {
			level = residence.Ancestry()[i-1].String()
		}
		for _, skill := range declared {
			skill.ResidencePath = level
			l.debugLog("[skills] %s declares %s (privilege=%s)", level, skill.ID, skill.RequiredPrivilege)
			index.Put(skill)
		}
	}

	return index, nil
}

// LevelDirs returns every directory a declaration file may live at for
// the residence: the trust root first, then each ancestry level.
func (l *Loader) LevelDirs(residence models.Residence) []string {
	dirs := []string{l.trustRoot}
	for _, ancestor := range residence.Ancestry() {
		dirs = append(dirs, filepath.Join(l.trustRoot, filepath.FromSlash(ancestor.String())))
	}
	return dirs
}

// loadFile parses one declaration file. A missing file is not an error.
// Entries are sorted by ID before being returned so the resolved index
// does not depend on declaration order within the file.
func (l *Loader) loadFile(path string) ([]models.Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read skill declarations %s: %w", path, err)
	}

	var file declarationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse skill declarations %s: %w", path, err)
	}

	for _, skill := range file.Skills {
		if skill.ID == "" {
			return nil, fmt.Errorf("skill declarations %s: entry with empty id", path)
		}
		if !skill.RequiredPrivilege.Valid() {
			return nil, fmt.Errorf("skill declarations %s: skill %s has unknown privilege %q",
				path, skill.ID, skill.RequiredPrivilege)
		}
		if skill.Requires != "" && !skill.Requires.Valid() {
			return nil, fmt.Errorf("skill declarations %s: skill %s requires unknown capability %q",
				path, skill.ID, skill.Requires)
		}
	}

	sort.Slice(file.Skills, func(i, j int) bool { return file.Skills[i].ID < file.Skills[j].ID })
	return file.Skills, nil
}
