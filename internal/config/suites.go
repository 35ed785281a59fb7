package config

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// Suite defaults applied by the registry.
const (
	DefaultSchedule   = "*/15 * * * *"
	DefaultAlertAfter = 1
)

type suitesFile struct {
	Suites []domain.TestSuite `yaml:"suites"`
}

// ParseSuites decodes a suite registry document. Missing fields get their
// defaults. Suites without id, url or goal, and repeated ids, are skipped
// with a warning.
func ParseSuites(data []byte, logger *zap.Logger) ([]domain.TestSuite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var doc suitesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse suites: %w", err)
	}

	seen := make(map[string]bool, len(doc.Suites))
	suites := make([]domain.TestSuite, 0, len(doc.Suites))
	for i, s := range doc.Suites {
		if s.ID == "" || s.URL == "" || s.Goal == "" {
			logger.Warn("skipping incomplete suite", zap.Int("index", i), zap.String("test_id", s.ID))
			continue
		}
		if seen[s.ID] {
			logger.Warn("skipping duplicate suite", zap.String("test_id", s.ID))
			continue
		}
		seen[s.ID] = true

		if s.Name == "" {
			s.Name = s.ID
		}
		if s.Schedule == "" {
			s.Schedule = DefaultSchedule
		}
		if s.Status == "" {
			s.Status = domain.SuiteStatusActive
		}
		if s.AlertAfter <= 0 {
			s.AlertAfter = DefaultAlertAfter
		}
		suites = append(suites, s)
	}
	return suites, nil
}

// LoadSuites reads a suite registry file. A missing file is an empty
// registry.
func LoadSuites(path string, logger *zap.Logger) ([]domain.TestSuite, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read suites: %w", err)
	}
	return ParseSuites(data, logger)
}

// Registry is the in-memory, reloadable set of test suites.
type Registry struct {
	mu     sync.RWMutex
	suites map[string]domain.TestSuite
}

// NewRegistry creates a registry holding suites.
func NewRegistry(suites []domain.TestSuite) *Registry {
	r := &Registry{}
	r.Replace(suites)
	return r
}

// Replace swaps the whole registry content.
func (r *Registry) Replace(suites []domain.TestSuite) {
	m := make(map[string]domain.TestSuite, len(suites))
	for _, s := range suites {
		m[s.ID] = s
	}
	r.mu.Lock()
	r.suites = m
	r.mu.Unlock()
}

// Get returns a suite by id.
func (r *Registry) Get(id string) (domain.TestSuite, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.suites[id]
	return s, ok
}

// List returns all suites ordered by id.
func (r *Registry) List() []domain.TestSuite {
	r.mu.RLock()
	out := make([]domain.TestSuite, 0, len(r.suites))
	for _, s := range r.suites {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
