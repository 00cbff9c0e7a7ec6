package taskcontext

import (
	"strings"
	"testing"
	"time"

	"github.com/deskagent/core/pkg/models"
)

func TestCompleteIntent_ResetsFailuresOnSuccess(t *testing.T) {
	c := New("goal", time.Time{})
	c.CompleteIntent(false, "err1")
	c.CompleteIntent(false, "err2")
	if c.ConsecutiveFailures != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d", c.ConsecutiveFailures)
	}
	c.CompleteIntent(true, "ok")
	if c.ConsecutiveFailures != 0 {
		t.Fatalf("expected consecutive failures reset to 0, got %d", c.ConsecutiveFailures)
	}
}

func TestRecordAction_CountersRespectInvariant(t *testing.T) {
	c := New("goal", time.Time{})
	c.RecordAction(models.Action{Type: models.ActionWait}, true, "ok")
	c.RecordAction(models.Action{Type: models.ActionWait}, false, "fail")
	total := 2
	if c.SuccessfulActions+c.FailedActions > total {
		t.Fatalf("successfulActions + failedActions must be <= totalActions")
	}
}

func TestRecentActions_BoundedRing(t *testing.T) {
	c := New("goal", time.Time{})
	for i := 0; i < 15; i++ {
		c.RecordAction(models.Action{Type: models.ActionWait}, true, "ok")
	}
	if len(c.RecentActions) != 10 {
		t.Fatalf("expected recentActions capped at 10, got %d", len(c.RecentActions))
	}
}

func TestShouldEnterRecoveryMode(t *testing.T) {
	c := New("goal", time.Time{})
	for i := 0; i < 5; i++ {
		c.CompleteIntent(false, "fail")
	}
	if !c.ShouldEnterRecoveryMode(5) {
		t.Fatal("expected recovery mode at 5 consecutive failures")
	}
}

func TestContextInjection_RecoveryModeQuotesLastError(t *testing.T) {
	c := New("goal", time.Time{})
	for i := 0; i < 5; i++ {
		c.CompleteIntent(false, "boom")
	}
	c.ShouldEnterRecoveryMode(5)
	injected := c.ContextInjection()
	if !strings.Contains(injected, "Recovery mode") || !strings.Contains(injected, "boom") {
		t.Fatalf("expected recovery warning quoting last error, got: %s", injected)
	}
}
