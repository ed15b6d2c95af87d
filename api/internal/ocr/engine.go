package ocr

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"medlist/api/internal/ocr/types"
)

// Engine is one configured multimodal model provider.
// ExtractMedications returns the model's raw, untrusted text reply.
type Engine interface {
	Name() string
	GetModel() string
	ExtractMedications(ctx context.Context, img types.ImagePayload) (string, error)
}

var aliases = map[string]string{
	"claude": "anthropic",
	"gpt":    "openai",
}

// Engines resolves an llm_name to a configured Engine. Read-only after construction.
type Engines struct {
	def string
	m   map[string]Engine
}

// NewEngines registers engs under their Name(); nil entries are skipped.
func NewEngines(def string, engs ...Engine) *Engines {
	e := &Engines{def: canonical(def), m: make(map[string]Engine, len(engs))}
	for _, eng := range engs {
		if eng == nil {
			continue
		}
		e.m[canonical(eng.Name())] = eng
	}
	return e
}

func canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[name]; ok {
		return a
	}
	return name
}

// GetEngine returns the engine for llmName; an empty name means the default.
func (e *Engines) GetEngine(llmName string) (Engine, error) {
	name := canonical(llmName)
	if name == "" {
		name = e.def
	}
	if eng, ok := e.m[name]; ok {
		return eng, nil
	}
	return nil, errors.Wrapf(types.ErrUnknownEngine, "%q; use one of %s", llmName, strings.Join(e.Names(), ", "))
}

func (e *Engines) Default() string { return e.def }

func (e *Engines) Names() []string {
	out := make([]string, 0, len(e.m))
	for n := range e.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Manager keeps a per-chat engine name on top of Engines.
type Manager struct {
	engs *Engines
	m    sync.Map // chatID -> string
}

func NewManager(engs *Engines) *Manager {
	return &Manager{engs: engs}
}

// Get returns the engine name chosen for chatID, "" for the default.
func (m *Manager) Get(chatID int64) string {
	if v, ok := m.m.Load(chatID); ok {
		return v.(string)
	}
	return ""
}

// Set validates name against the registry before storing it.
func (m *Manager) Set(chatID int64, name string) error {
	eng, err := m.engs.GetEngine(name)
	if err != nil {
		return err
	}
	m.m.Store(chatID, canonical(eng.Name()))
	return nil
}

func (m *Manager) Reset(chatID int64) { m.m.Delete(chatID) }

func (m *Manager) Engines() *Engines { return m.engs }
