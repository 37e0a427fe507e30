package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PromptSet is the instruction text for one stage role.
type PromptSet struct {
	System string `mapstructure:"system"`
	// Version identifies the wording so logs can correlate outputs with prompt edits.
	Version string `mapstructure:"version"`
}

// PromptStore serves stage instructions and swaps them when the file changes.
type PromptStore struct {
	mu       sync.RWMutex
	prompts  map[string]PromptSet
	v        *viper.Viper
	onChange func(roles []string)
}

// LoadPrompts reads the prompt file. With watch set, edits are picked up
// without a restart.
func LoadPrompts(path string, watch bool) (*PromptStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read prompts file %s: %w", path, err)
	}

	s := &PromptStore{v: v}
	if err := s.reload(); err != nil {
		return nil, err
	}

	if watch {
		v.OnConfigChange(func(fsnotify.Event) {
			_ = s.reload()
		})
		v.WatchConfig()
	}
	return s, nil
}

// NewStaticPrompts builds a store from an in-memory map.
func NewStaticPrompts(prompts map[string]PromptSet) *PromptStore {
	copied := make(map[string]PromptSet, len(prompts))
	for k, p := range prompts {
		copied[k] = p
	}
	return &PromptStore{prompts: copied}
}

// OnChange registers a callback invoked with the roles present after each reload.
func (s *PromptStore) OnChange(fn func(roles []string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *PromptStore) reload() error {
	var parsed struct {
		Roles map[string]PromptSet `mapstructure:"roles"`
	}
	if err := s.v.Unmarshal(&parsed); err != nil {
		return fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	if len(parsed.Roles) == 0 {
		// keep serving the previous prompts rather than an empty set
		return fmt.Errorf("prompts file defines no roles")
	}

	s.mu.Lock()
	s.prompts = parsed.Roles
	cb := s.onChange
	s.mu.Unlock()

	if cb != nil {
		roles := make([]string, 0, len(parsed.Roles))
		for r := range parsed.Roles {
			roles = append(roles, r)
		}
		cb(roles)
	}
	return nil
}

// Get returns the prompt for role.
func (s *PromptStore) Get(role string) (PromptSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[role]
	return p, ok
}

// Set replaces one role's prompt in place.
func (s *PromptStore) Set(role string, p PromptSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompts == nil {
		s.prompts = make(map[string]PromptSet)
	}
	s.prompts[role] = p
}
