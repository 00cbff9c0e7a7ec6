package skills

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleSkill = `---
name: Open Browser
description: Opens the default browser to a URL.
category: navigation
version: "1.0"
author: test
command: open-browser {{url}}
parameters:
  - name: url
    description: URL to open
    required: true
    default: "https://example.com"
---

# Open Browser

Use this when the goal mentions visiting a website.
`

func TestParseRoundTrip(t *testing.T) {
	skill, err := Parse([]byte(sampleSkill), "/skills/open-browser")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if skill.Name != "Open Browser" {
		t.Errorf("Name = %q", skill.Name)
	}
	if skill.Command != "open-browser {{url}}" {
		t.Errorf("Command = %q", skill.Command)
	}
	if len(skill.Parameters) != 1 || skill.Parameters[0].Type != "string" {
		t.Errorf("Parameters = %+v", skill.Parameters)
	}
	if skill.Body == "" {
		t.Error("expected non-empty body")
	}
}

func TestParseRequiresFields(t *testing.T) {
	cases := []string{
		"---\ndescription: x\ncommand: y\n---\nbody",
		"---\nname: x\ncommand: y\n---\nbody",
		"---\nname: x\ndescription: y\n---\nbody",
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c), "/tmp"); err == nil {
			t.Errorf("expected error for %q", c)
		}
	}
}

func TestParseFileMissingDelimiters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SkillFilename)
	if err := os.WriteFile(path, []byte("no frontmatter here"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseFile(path); err == nil {
		t.Error("expected error for missing frontmatter")
	}
}

func TestToSnakeCaseIdempotent(t *testing.T) {
	cases := []string{"Open Browser", "open-browser", "already_snake", "CamelCase", "Mixed Case-Name"}
	for _, c := range cases {
		once := ToSnakeCase(c)
		twice := ToSnakeCase(once)
		if once != twice {
			t.Errorf("ToSnakeCase not idempotent for %q: once=%q twice=%q", c, once, twice)
		}
	}
}

func TestToSnakeCaseExamples(t *testing.T) {
	cases := map[string]string{
		"Open Browser": "open_browser",
		"open-browser": "open_browser",
		"CamelCase":    "camel_case",
	}
	for in, want := range cases {
		if got := ToSnakeCase(in); got != want {
			t.Errorf("ToSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderCommand(t *testing.T) {
	got := RenderCommand("open {{url}} --mode={{mode}}", map[string]any{"url": "https://x.test", "mode": 2})
	want := "open https://x.test --mode=2"
	if got != want {
		t.Errorf("RenderCommand = %q, want %q", got, want)
	}
}

func TestInferType(t *testing.T) {
	cases := []struct {
		def  any
		want string
	}{
		{true, "boolean"},
		{3, "integer"},
		{3.5, "number"},
		{nil, "string"},
		{"x", "string"},
	}
	for _, c := range cases {
		if got := inferType(c.def); got != c.want {
			t.Errorf("inferType(%v) = %q, want %q", c.def, got, c.want)
		}
	}
}
