package skills

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/deskagent/core/pkg/models"
)

// GatingContext caches the local host facts skill eligibility checks
// depend on, so repeated PATH lookups don't hit the OS on every reload.
// Environment variables are read afresh on every check.
type GatingContext struct {
	os       string
	binCache map[string]bool
}

// NewGatingContext snapshots the current host for eligibility checks.
func NewGatingContext() *GatingContext {
	return &GatingContext{os: runtime.GOOS, binCache: make(map[string]bool)}
}

// CheckBinary reports whether name exists on PATH, caching the result.
func (c *GatingContext) CheckBinary(name string) bool {
	if v, ok := c.binCache[name]; ok {
		return v
	}
	_, err := exec.LookPath(name)
	ok := err == nil
	c.binCache[name] = ok
	return ok
}

// Eligible reports whether skill's requires block (if any) is satisfied
// by the local host: OS match, required environment variables set,
// required binaries on PATH. A skill with no requires block is always
// eligible.
func (c *GatingContext) Eligible(skill *models.ParsedSkill) (bool, string) {
	req := skill.Requires
	if req == nil {
		return true, ""
	}
	if len(req.OS) > 0 && !contains(req.OS, c.os) {
		return false, fmt.Sprintf("requires OS %v, have %s", req.OS, c.os)
	}
	for _, env := range req.Env {
		if _, ok := os.LookupEnv(env); !ok {
			return false, "missing environment variable " + env
		}
	}
	for _, bin := range req.Bin {
		if !c.CheckBinary(bin) {
			return false, "missing required binary " + bin
		}
	}
	return true, ""
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
