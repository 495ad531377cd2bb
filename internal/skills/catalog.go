// Package skills resolves persona documents from disk and injects them
// into run prompts.
package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tOgg1/armada/internal/models"
)

// ErrSkillNotFound indicates no skill document exists for an id.
var ErrSkillNotFound = errors.New("skill not found")

const frontMatterDelimiter = "---"

// frontMatter is the YAML header of a skill document.
type frontMatter struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source,omitempty"`
}

// Catalog resolves skill documents from a global directory and a
// project-local directory. A local document shadows a global one with
// the same id.
type Catalog struct {
	globalDir string
	localDir  string
}

// NewCatalog creates a catalog over the two skill directories. Either
// directory may be absent.
func NewCatalog(globalDir, localDir string) *Catalog {
	return &Catalog{globalDir: globalDir, localDir: localDir}
}

// Get resolves a skill by id, preferring the local scope.
func (c *Catalog) Get(id string) (*models.Skill, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrSkillNotFound)
	}

	if skill, err := c.load(c.localDir, id, models.SkillScopeLocal); err == nil {
		return skill, nil
	} else if !errors.Is(err, ErrSkillNotFound) {
		return nil, err
	}

	return c.load(c.globalDir, id, models.SkillScopeGlobal)
}

// List returns all resolvable skills sorted by id, with local documents
// shadowing global ones.
func (c *Catalog) List() ([]*models.Skill, error) {
	byID := make(map[string]*models.Skill)

	for _, scope := range []struct {
		dir   string
		scope models.SkillScope
	}{
		{c.globalDir, models.SkillScopeGlobal},
		{c.localDir, models.SkillScopeLocal},
	} {
		ids, err := listIDs(scope.dir)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			skill, err := c.load(scope.dir, id, scope.scope)
			if err != nil {
				return nil, err
			}
			byID[id] = skill
		}
	}

	skills := make([]*models.Skill, 0, len(byID))
	for _, skill := range byID {
		skills = append(skills, skill)
	}
	sort.Slice(skills, func(i, j int) bool {
		return skills[i].ID < skills[j].ID
	})
	return skills, nil
}

// AddOrUpdate writes a skill document into the local scope, creating
// the directory if needed.
func (c *Catalog) AddOrUpdate(id, name, content, source string) (*models.Skill, error) {
	skill := &models.Skill{
		ID:      id,
		Name:    name,
		Content: content,
		Source:  source,
		Scope:   models.SkillScopeLocal,
	}
	if err := skill.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.localDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create skills dir: %w", err)
	}

	header, err := yaml.Marshal(frontMatter{Name: name, Source: source})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal skill front matter: %w", err)
	}

	var doc strings.Builder
	doc.WriteString(frontMatterDelimiter + "\n")
	doc.Write(header)
	doc.WriteString(frontMatterDelimiter + "\n")
	doc.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		doc.WriteString("\n")
	}

	path := filepath.Join(c.localDir, id+".md")
	if err := os.WriteFile(path, []byte(doc.String()), 0644); err != nil {
		return nil, fmt.Errorf("failed to write skill %s: %w", id, err)
	}

	return skill, nil
}

// Inject wraps a prompt with the skill persona. Pure function; callers
// decide when injection applies.
func Inject(prompt string, skill *models.Skill) string {
	if skill == nil {
		return prompt
	}
	return fmt.Sprintf("You are operating as: %s\n\n%s\n\n---\n\n%s",
		skill.Name, skill.Content, prompt)
}

func (c *Catalog) load(dir, id string, scope models.SkillScope) (*models.Skill, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}

	data, err := os.ReadFile(filepath.Join(dir, id+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
		}
		return nil, fmt.Errorf("failed to read skill %s: %w", id, err)
	}

	header, content := splitFrontMatter(string(data))

	skill := &models.Skill{
		ID:      id,
		Name:    id,
		Content: content,
		Scope:   scope,
	}
	if header != "" {
		var matter frontMatter
		if err := yaml.Unmarshal([]byte(header), &matter); err != nil {
			return nil, fmt.Errorf("failed to parse skill %s front matter: %w", id, err)
		}
		if matter.Name != "" {
			skill.Name = matter.Name
		}
		skill.Source = matter.Source
	}

	return skill, nil
}

// splitFrontMatter separates the YAML header from the document body.
// Documents without a header yield the whole file as body.
func splitFrontMatter(data string) (header, body string) {
	trimmed := strings.TrimPrefix(data, "\ufeff")
	if !strings.HasPrefix(trimmed, frontMatterDelimiter+"\n") {
		return "", strings.TrimSpace(data)
	}

	rest := trimmed[len(frontMatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelimiter)
	if end < 0 {
		return "", strings.TrimSpace(data)
	}

	header = rest[:end]
	body = rest[end+len(frontMatterDelimiter)+1:]
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	} else {
		body = ""
	}
	return header, strings.TrimSpace(body)
}

func listIDs(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read skills dir: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".md"))
	}
	return ids, nil
}
