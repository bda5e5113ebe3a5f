// Package config loads pool profiles from disk. A profile is the on-disk
// form of a pool configuration; loading is best-effort and falls back to
// defaults so a missing or broken file never blocks startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ByteMirror/cogs/concurrency"
	"github.com/ByteMirror/cogs/log"
)

// Profile is a JSON-serializable pool configuration.
type Profile struct {
	// CorePoolSize is the number of always-alive workers.
	CorePoolSize int `json:"core_pool_size"`
	// MaxPoolSize caps the worker count.
	MaxPoolSize int `json:"max_pool_size"`
	// KeepAliveMS is the idle lifetime of non-core workers in milliseconds.
	KeepAliveMS int `json:"keep_alive_ms"`
	// QueueCapacity bounds the work queue; 0 means direct handoff.
	QueueCapacity int `json:"queue_capacity"`
	// Policy is one of "abort", "caller-runs", "discard", "discard-oldest".
	Policy string `json:"policy"`
	// PrewarmCoreWorkers starts core workers eagerly.
	PrewarmCoreWorkers bool `json:"prewarm_core_workers"`
	// AllowCoreTimeout lets core workers idle out too.
	AllowCoreTimeout bool `json:"allow_core_timeout"`
	// TaskTimeoutMS bounds each task's execution in milliseconds; 0 = none.
	TaskTimeoutMS int `json:"task_timeout_ms"`
}

// DefaultProfile mirrors concurrency.DefaultConfig.
func DefaultProfile() *Profile {
	return &Profile{
		CorePoolSize:  2,
		MaxPoolSize:   8,
		KeepAliveMS:   60_000,
		QueueCapacity: 64,
		Policy:        "abort",
	}
}

// Load reads a profile from path. On any failure it logs and returns the
// default profile, matching the rest of the process's fail-open startup.
func Load(path string) *Profile {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Errorf("failed to read pool profile %s: %v", path, err)
		}
		return DefaultProfile()
	}

	p := DefaultProfile()
	if err := json.Unmarshal(data, p); err != nil {
		log.Errorf("failed to parse pool profile %s: %v", path, err)
		return DefaultProfile()
	}
	return p
}

// Save writes the profile to path.
func (p *Profile) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pool profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pool profile: %w", err)
	}
	return nil
}

// ParsePolicy converts the on-disk policy name to its enum value.
func ParsePolicy(name string) (concurrency.RejectionPolicy, error) {
	switch name {
	case "abort", "":
		return concurrency.Abort, nil
	case "caller-runs":
		return concurrency.CallerRuns, nil
	case "discard":
		return concurrency.Discard, nil
	case "discard-oldest":
		return concurrency.DiscardOldest, nil
	default:
		return concurrency.Abort, fmt.Errorf("unknown rejection policy %q", name)
	}
}

// PoolConfig converts the profile to a runtime pool configuration.
func (p *Profile) PoolConfig() (concurrency.Config, error) {
	policy, err := ParsePolicy(p.Policy)
	if err != nil {
		return concurrency.Config{}, err
	}
	return concurrency.Config{
		CorePoolSize:       p.CorePoolSize,
		MaxPoolSize:        p.MaxPoolSize,
		KeepAlive:          time.Duration(p.KeepAliveMS) * time.Millisecond,
		QueueCapacity:      p.QueueCapacity,
		Policy:             policy,
		PrewarmCoreWorkers: p.PrewarmCoreWorkers,
		AllowCoreTimeout:   p.AllowCoreTimeout,
		TaskTimeout:        time.Duration(p.TaskTimeoutMS) * time.Millisecond,
	}, nil
}
