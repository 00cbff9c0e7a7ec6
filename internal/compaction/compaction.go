// Package compaction keeps a session's conversation history under its
// token budget by replacing the older prefix with a single synthetic
// summary message.
package compaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deskagent/core/internal/modelclient"
	"github.com/deskagent/core/pkg/models"
)

// Defaults for the compactor's knobs.
const (
	DefaultTokenThreshold = 100_000
	DefaultKeepRecent     = 10
)

// summaryPrompt instructs the model to digest the older history.
const summaryPrompt = `Summarize the following conversation history into a concise digest.
Keep: the user's goals, what was accomplished, important facts discovered, and any unresolved problems.
Drop: pleasantries, superseded attempts, and screenshot descriptions.
Reply with the digest only.`

// EstimateTokens approximates token usage as characters divided by four.
// Providers may report exact counts; this heuristic is a lower bound, so
// compression can only trigger late, never spuriously early.
func EstimateTokens(messages []models.SessionMessage) int {
	total := 0
	for _, m := range messages {
		if m.TokenCount > 0 {
			total += m.TokenCount
			continue
		}
		total += len(m.Content) / 4
	}
	return total
}

// Compactor compresses history through a model client.
type Compactor struct {
	client         modelclient.Client
	tokenThreshold int
	keepRecent     int
	logger         *slog.Logger
}

// New constructs a Compactor. Zero thresholds select the defaults.
func New(client modelclient.Client, tokenThreshold, keepRecent int, logger *slog.Logger) *Compactor {
	if tokenThreshold <= 0 {
		tokenThreshold = DefaultTokenThreshold
	}
	if keepRecent <= 0 {
		keepRecent = DefaultKeepRecent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		client:         client,
		tokenThreshold: tokenThreshold,
		keepRecent:     keepRecent,
		logger:         logger,
	}
}

// NeedsCompression reports whether the estimated token count exceeds the
// threshold and there is an older prefix to fold away.
func (c *Compactor) NeedsCompression(messages []models.SessionMessage) bool {
	return len(messages) > c.keepRecent && EstimateTokens(messages) > c.tokenThreshold
}

// Compress folds everything before the last keepRecent messages into one
// synthetic assistant message and returns [summary, ...recent]. The
// recent tail is returned unchanged. A message in the prefix that an
// outstanding tool call still references is carried over verbatim after
// the summary instead of being folded into it.
func (c *Compactor) Compress(ctx context.Context, messages []models.SessionMessage) ([]models.SessionMessage, error) {
	if len(messages) <= c.keepRecent {
		return messages, nil
	}

	split := len(messages) - c.keepRecent
	prefix := messages[:split]
	recent := messages[split:]

	pinned := pinnedToolMessages(prefix, recent)
	var foldable []models.SessionMessage
	for _, m := range prefix {
		if _, ok := pinned[m.ID]; !ok {
			foldable = append(foldable, m)
		}
	}

	summaryText, err := c.summarize(ctx, foldable)
	if err != nil {
		return nil, fmt.Errorf("summarize history: %w", err)
	}

	summary := models.SessionMessage{
		Role:       models.RoleAssistant,
		Content:    "[History summary] " + summaryText,
		TokenCount: len(summaryText) / 4,
	}

	out := make([]models.SessionMessage, 0, 1+len(pinned)+len(recent))
	out = append(out, summary)
	for _, m := range prefix {
		if _, ok := pinned[m.ID]; ok {
			out = append(out, m)
		}
	}
	out = append(out, recent...)

	c.logger.Info("history compressed",
		slog.Int("folded", len(foldable)),
		slog.Int("pinned", len(pinned)),
		slog.Int("kept", len(recent)))
	return out, nil
}

func (c *Compactor) summarize(ctx context.Context, messages []models.SessionMessage) (string, error) {
	if len(messages) == 0 {
		return "No prior history.", nil
	}

	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "[%s] %s\n", m.Role, m.Content)
	}

	resp, err := c.client.Chat(ctx, &modelclient.ChatRequest{
		System: summaryPrompt,
		Messages: []modelclient.Message{
			{Role: modelclient.RoleUser, Text: transcript.String()},
		},
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("empty summary from model")
	}
	return text, nil
}

// pinnedToolMessages finds prefix messages an outstanding tool call in
// the recent tail still references (a tool result whose request has been
// folded away would orphan the exchange).
func pinnedToolMessages(prefix, recent []models.SessionMessage) map[int64]struct{} {
	pinned := make(map[int64]struct{})

	hasRecentToolTurn := false
	for _, m := range recent {
		if m.Role == models.RoleTool {
			hasRecentToolTurn = true
			break
		}
	}
	if !hasRecentToolTurn {
		return pinned
	}

	// Pin the trailing run of tool-exchange turns in the prefix: they
	// are the request side of the results still sitting in the tail.
	for i := len(prefix) - 1; i >= 0; i-- {
		m := prefix[i]
		if m.Role == models.RoleTool || m.Role == models.RoleAssistant {
			pinned[m.ID] = struct{}{}
			if m.Role == models.RoleAssistant {
				break
			}
			continue
		}
		break
	}
	return pinned
}
