// Package prompt loads the engine's prompt templates. Built-in templates
// are compiled in via go:embed; a config-supplied directory of markdown
// files overrides them by name, and an fsnotify watcher keeps overrides
// fresh without a restart.
package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
)

//go:embed templates
var builtin embed.FS

// Template names the engine asks for. Codegen templates are addressed as
// "codegen/base" plus "codegen/<service>".
const (
	Normalizer       = "normalizer"
	Planner          = "planner"
	PlannerEnhanced  = "planner_enhanced"
	IntentAnalyzer   = "enhanced_intent_analyzer"
	Presentation     = "presentation"
	Supervisor       = "supervisor"
	RequireParameter = "require_parameter"
	ErrorHandler     = "error_handler"
	CodegenBase      = "codegen/base"
)

// ErrTemplateNotFound means neither the override directory nor the
// embedded defaults carry the requested template.
var ErrTemplateNotFound = errors.New("prompt template not found")

// Manager resolves template names to rendered prompt text.
type Manager struct {
	mu        sync.RWMutex
	overrides map[string]string

	dir     string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewManager builds a manager. dir may be empty, in which case only the
// embedded templates are served.
func NewManager(dir string) (*Manager, error) {
	m := &Manager{dir: dir, overrides: map[string]string{}}
	if dir != "" {
		if err := m.loadOverrides(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// loadOverrides scans the override directory (including the codegen/
// subdirectory) into the in-memory map. Missing directory is not an error;
// the embedded defaults still serve.
func (m *Manager) loadOverrides() error {
	loaded := map[string]string{}
	err := filepath.WalkDir(m.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil //nolint:nilerr
		}
		rel, relErr := filepath.Rel(m.dir, path)
		if relErr != nil {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			slog.Warn("Skipping unreadable prompt template", "path", path, "error", readErr)
			return nil
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, ".md"))
		loaded[name] = string(data)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scanning prompt dir: %w", err)
	}

	m.mu.Lock()
	m.overrides = loaded
	m.mu.Unlock()
	return nil
}

// Watch starts hot reload of the override directory. Events are debounced
// by a full rescan per event; template files are small.
func (m *Manager) Watch() error {
	if m.dir == "" || m.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prompt watcher: %w", err)
	}
	if err := w.Add(m.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", m.dir, err)
	}
	// The codegen subdirectory is watched separately; fsnotify is not
	// recursive.
	if sub := filepath.Join(m.dir, "codegen"); dirExists(sub) {
		if err := w.Add(sub); err != nil {
			slog.Warn("Could not watch codegen prompt dir", "error", err)
		}
	}
	m.watcher = w
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		var last time.Time
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
					continue
				}
				if time.Since(last) < 200*time.Millisecond {
					continue
				}
				last = time.Now()
				if err := m.loadOverrides(); err != nil {
					slog.Error("Prompt reload failed", "error", err)
					continue
				}
				slog.Info("Prompt templates reloaded", "dir", m.dir)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("Prompt watcher error", "error", err)
			}
		}
	}()
	slog.Info("Prompt hot reload enabled", "dir", m.dir)
	return nil
}

// Close stops the watcher, if running.
func (m *Manager) Close() {
	if m.watcher == nil {
		return
	}
	_ = m.watcher.Close()
	<-m.done
	m.watcher = nil
}

// Raw returns the template text for a name, override first, then embedded.
func (m *Manager) Raw(name string) (string, error) {
	m.mu.RLock()
	text, ok := m.overrides[name]
	m.mu.RUnlock()
	if ok {
		return text, nil
	}
	data, err := builtin.ReadFile("templates/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return string(data), nil
}

// Render executes the named template with the given data.
func (m *Manager) Render(name string, data any) (string, error) {
	text, err := m.Raw(name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Codegen returns the code-generation prompt for a service: the base
// template plus the service-specific one when present. A missing service
// template degrades to base only.
func (m *Manager) Codegen(service string, data any) (string, error) {
	base, err := m.Render(CodegenBase, data)
	if err != nil {
		return "", err
	}
	if service == "" {
		return base, nil
	}
	extra, err := m.Render("codegen/"+service, data)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return base, nil
		}
		return "", err
	}
	return base + "\n\n" + extra, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
