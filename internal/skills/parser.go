// Package skills implements skill discovery: it parses SKILL.md
// front-matter + body into a models.ParsedSkill, exposes each as a tool
// spec through the registry, and watches the skills directory so edits
// are picked up without a restart.
package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deskagent/core/pkg/models"
)

const (
	// SkillFilename is the expected filename for skill definitions.
	SkillFilename = "SKILL.md"

	// frontmatterDelimiter marks the beginning and end of the YAML
	// front-matter block.
	frontmatterDelimiter = "---"
)

// ParseFile reads and parses one SKILL.md file.
func ParseFile(path string) (*models.ParsedSkill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes SKILL.md content into a ParsedSkill. Required
// front-matter: name, description, command. Optional: category, version,
// author, parameters, requires.
func Parse(data []byte, dir string) (*models.ParsedSkill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("split frontmatter: %w", err)
	}

	var skill models.ParsedSkill
	if err := yaml.Unmarshal(frontmatter, &skill); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	if skill.Name == "" {
		return nil, fmt.Errorf("skill name is required")
	}
	if skill.Description == "" {
		return nil, fmt.Errorf("skill description is required")
	}
	if skill.Command == "" {
		return nil, fmt.Errorf("skill command is required")
	}

	skill.Body = strings.TrimSpace(string(body))
	skill.Path = dir

	for i := range skill.Parameters {
		if skill.Parameters[i].Type == "" {
			skill.Parameters[i].Type = inferType(skill.Parameters[i].Default)
		}
	}

	return &skill, nil
}

// inferType derives a JSON-schema primitive type from a default value's
// shape, per the contract's "inferred from default-value shape" rule.
func inferType(def any) string {
	switch v := def.(type) {
	case bool:
		return "boolean"
	case int, int64:
		return "integer"
	case float64:
		if v == float64(int64(v)) {
			return "integer"
		}
		return "number"
	case nil:
		return "string"
	default:
		return "string"
	}
}

// splitFrontmatter separates the YAML front-matter from the Markdown
// body. The file must open and close the block with a bare "---" line.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var frontLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		frontLines = append(frontLines, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scanner error: %w", err)
	}

	return []byte(strings.Join(frontLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}

// ToSnakeCase derives the tool name from a skill's front-matter name. It
// is idempotent: ToSnakeCase(ToSnakeCase(x)) == ToSnakeCase(x).
func ToSnakeCase(s string) string {
	var b strings.Builder
	prevUnderscore := false
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 && !prevUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			prevUnderscore = false
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	return out
}

// RenderCommand substitutes {{paramName}} placeholders in the skill's
// command template with the given argument values.
func RenderCommand(template string, args map[string]any) string {
	out := template
	for k, v := range args {
		placeholder := "{{" + k + "}}"
		out = strings.ReplaceAll(out, placeholder, fmt.Sprintf("%v", v))
	}
	return out
}
