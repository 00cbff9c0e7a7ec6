package skills

import (
	"runtime"
	"testing"

	"github.com/deskagent/core/pkg/models"
)

func TestGatingNoRequires(t *testing.T) {
	g := NewGatingContext()
	ok, reason := g.Eligible(&models.ParsedSkill{Name: "x"})
	if !ok || reason != "" {
		t.Errorf("expected eligible with no reason, got ok=%v reason=%q", ok, reason)
	}
}

func TestGatingOSMismatch(t *testing.T) {
	g := NewGatingContext()
	other := "plan9"
	skill := &models.ParsedSkill{Name: "x", Requires: &models.SkillRequires{OS: []string{other}}}
	ok, reason := g.Eligible(skill)
	if ok {
		t.Error("expected ineligible for OS mismatch")
	}
	if reason == "" {
		t.Error("expected a reason")
	}
}

func TestGatingOSMatch(t *testing.T) {
	g := NewGatingContext()
	skill := &models.ParsedSkill{Name: "x", Requires: &models.SkillRequires{OS: []string{runtime.GOOS}}}
	ok, _ := g.Eligible(skill)
	if !ok {
		t.Error("expected eligible for matching OS")
	}
}

func TestGatingMissingBinary(t *testing.T) {
	g := NewGatingContext()
	skill := &models.ParsedSkill{Name: "x", Requires: &models.SkillRequires{Bin: []string{"definitely-not-a-real-binary-xyz"}}}
	ok, reason := g.Eligible(skill)
	if ok {
		t.Error("expected ineligible for missing binary")
	}
	if reason == "" {
		t.Error("expected a reason")
	}
}

func TestGatingMissingEnv(t *testing.T) {
	g := NewGatingContext()
	skill := &models.ParsedSkill{Name: "x", Requires: &models.SkillRequires{Env: []string{"DESKAGENT_TEST_UNSET_VAR_XYZ"}}}
	ok, _ := g.Eligible(skill)
	if ok {
		t.Error("expected ineligible for missing env var")
	}
}
