package skills

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/deskagent/core/internal/toolregistry"
	"github.com/deskagent/core/pkg/models"
)

const watchDebounce = 300 * time.Millisecond

// Loader discovers SKILL.md files under one directory, gates
// them against the local host, and republishes the eligible set to a
// tool registry every time the directory changes (copy-on-write, per the
// design notes on the skill registry).
type Loader struct {
	dir     string
	gating  *GatingContext
	reg     *toolregistry.Registry
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	parsed []*models.ParsedSkill
}

// NewLoader constructs a Loader over dir, publishing into reg.
func NewLoader(dir string, reg *toolregistry.Registry, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, gating: NewGatingContext(), reg: reg, logger: logger}
}

// Reload re-scans the directory, re-gates every skill, and publishes the
// eligible tool set to the registry.
func (l *Loader) Reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.publish(nil)
			return nil
		}
		return err
	}

	var parsed []*models.ParsedSkill
	var tools []toolregistry.Tool
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(l.dir, e.Name(), SkillFilename)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		skill, err := ParseFile(path)
		if err != nil {
			l.logger.Warn("skipping invalid skill", slog.String("path", path), slog.Any("error", err))
			continue
		}
		if ok, reason := l.gating.Eligible(skill); !ok {
			l.logger.Info("skill ineligible on this host", slog.String("name", skill.Name), slog.String("reason", reason))
			continue
		}
		parsed = append(parsed, skill)
		tools = append(tools, NewTool(skill))
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Name < parsed[j].Name })

	l.mu.Lock()
	l.parsed = parsed
	l.mu.Unlock()

	l.publish(tools)
	return nil
}

func (l *Loader) publish(tools []toolregistry.Tool) {
	if l.reg != nil {
		l.reg.PublishSkills(tools)
	}
}

// Skills returns the current eligible, parsed skill list.
func (l *Loader) Skills() []*models.ParsedSkill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.ParsedSkill, len(l.parsed))
	copy(out, l.parsed)
	return out
}

// Watch starts an fsnotify watcher on the skills directory and reloads
// (debounced) on any create/write/remove/rename, until ctx is done.
func (l *Loader) Watch(ctx context.Context) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.watcher = watcher

	if err := l.addWatches(); err != nil {
		watcher.Close()
		return err
	}

	go l.watchLoop(ctx)
	return nil
}

func (l *Loader) addWatches() error {
	if err := l.watcher.Add(l.dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = l.watcher.Add(filepath.Join(l.dir, e.Name()))
		}
	}
	return nil
}

func (l *Loader) watchLoop(ctx context.Context) {
	defer l.watcher.Close()

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-l.watcher.Errors:
			continue
		case <-reload:
			if err := l.Reload(); err != nil {
				l.logger.Warn("skill reload failed", slog.Any("error", err))
				continue
			}
			_ = l.addWatches()
		}
	}
}

// Close stops the watcher, if running.
func (l *Loader) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
