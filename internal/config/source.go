package config

import (
	"sync/atomic"

	"github.com/deskpilot/deskpilot/pkg/types"
)

// Source holds the live configuration snapshot. Readers never block; a
// reload swaps the whole snapshot.
type Source struct {
	dir string
	cur atomic.Pointer[types.Config]
	// model pins the model over whatever the files say, across reloads.
	model atomic.Pointer[string]
}

// NewSource wraps an already loaded configuration. dir is the project
// directory used by Reload.
func NewSource(dir string, cfg *types.Config) *Source {
	if cfg == nil {
		cfg = &types.Config{}
	}
	s := &Source{dir: dir}
	s.cur.Store(cfg)
	return s
}

// Open loads the configuration for dir and wraps it in a Source.
func Open(dir string) (*Source, error) {
	cfg, err := Load(dir)
	if err != nil {
		return nil, err
	}
	return NewSource(dir, cfg), nil
}

// Config returns the current snapshot. Callers must not mutate it.
func (s *Source) Config() *types.Config {
	return s.cur.Load()
}

// Model returns the configured model id.
func (s *Source) Model() string {
	return s.cur.Load().Model
}

// Dir returns the project directory.
func (s *Source) Dir() string {
	return s.dir
}

// Set replaces the snapshot.
func (s *Source) Set(cfg *types.Config) {
	s.cur.Store(cfg)
}

// SetModel pins model, as the --model flag does. The pin outlives reloads.
func (s *Source) SetModel(model string) {
	s.model.Store(&model)
	next := *s.cur.Load()
	next.Model = model
	s.cur.Store(&next)
}

// Reload re-reads every layer from disk and swaps the snapshot, keeping a
// model set with SetModel. On error the previous snapshot stays in place.
func (s *Source) Reload() (*types.Config, error) {
	cfg, err := Load(s.dir)
	if err != nil {
		return nil, err
	}
	if pinned := s.model.Load(); pinned != nil {
		cfg.Model = *pinned
	}
	s.cur.Store(cfg)
	return cfg, nil
}
