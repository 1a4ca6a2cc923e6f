package source

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

const (
	DefaultQuarantineThreshold = 5
	DefaultBackoffFactor       = 2.0
	DefaultMaxCadence          = 24 * time.Hour
)

// BackoffPolicy stretches the cadence of sources that keep failing.
type BackoffPolicy struct {
	Threshold  int
	Factor     float64
	MaxCadence time.Duration
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Threshold:  DefaultQuarantineThreshold,
		Factor:     DefaultBackoffFactor,
		MaxCadence: DefaultMaxCadence,
	}
}

// EffectiveCadence is cadence * factor^(failures-threshold+1) once the
// threshold is reached, never above MaxCadence (unless the base cadence
// already is).
func (p BackoffPolicy) EffectiveCadence(cadence time.Duration, failures int) time.Duration {
	if p.Threshold <= 0 || failures < p.Threshold || p.Factor <= 1 {
		return cadence
	}

	if p.MaxCadence <= cadence {
		return cadence
	}

	multiplier := math.Pow(p.Factor, float64(failures-p.Threshold+1))
	stretched := float64(cadence) * multiplier
	if stretched >= float64(p.MaxCadence) || math.IsInf(stretched, 0) {
		return p.MaxCadence
	}

	return time.Duration(stretched)
}

func (p BackoffPolicy) Quarantined(failures int) bool {
	return p.Threshold > 0 && failures >= p.Threshold
}

// Registry is the in-memory set of crawl targets. It performs no I/O.
type Registry struct {
	policy  BackoffPolicy
	sources map[string]*Descriptor
	order   []string
	mu      sync.RWMutex
}

func NewRegistry(descriptors []*Descriptor, policy BackoffPolicy) (*Registry, error) {
	r := &Registry{
		policy:  policy,
		sources: make(map[string]*Descriptor, len(descriptors)),
		order:   make([]string, 0, len(descriptors)),
	}

	for _, desc := range descriptors {
		if desc == nil {
			continue
		}
		if _, ok := r.sources[desc.ID]; ok {
			return nil, &ConfigError{Kind: ErrDuplicateSource, Source: desc.ID}
		}
		copied := *desc
		r.sources[desc.ID] = &copied
		r.order = append(r.order, desc.ID)
	}
	sort.Strings(r.order)

	return r, nil
}

// Seed restores attempt state persisted by a previous run. Unknown source
// IDs are ignored: a source removed from configuration keeps its rows but
// is no longer scheduled.
func (r *Registry) Seed(records []Bookkeeping) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	seeded := 0
	for _, rec := range records {
		desc, ok := r.sources[rec.SourceID]
		if !ok {
			continue
		}
		if rec.LastAttemptAt != nil {
			desc.LastAttemptAt = rec.LastAttemptAt.UTC()
		}
		if rec.LastSuccessAt != nil {
			desc.LastSuccessAt = rec.LastSuccessAt.UTC()
		}
		desc.ConsecutiveFailures = max(rec.ConsecutiveFailures, 0)
		desc.ETag = rec.ETag
		desc.LastModified = rec.LastModified
		seeded++
	}
	return seeded
}

func (r *Registry) Policy() BackoffPolicy {
	return r.policy
}

// ListDue returns copies of the enabled sources whose elapsed time since the
// last attempt meets their effective cadence. Never-attempted sources come
// first, then the most overdue; ties break on ascending ID.
func (r *Registry) ListDue(now time.Time) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type candidate struct {
		desc    Descriptor
		fresh   bool
		overdue time.Duration
	}

	var due []candidate
	for _, id := range r.order {
		desc := r.sources[id]
		if !desc.Enabled() {
			continue
		}

		if desc.LastAttemptAt.IsZero() {
			due = append(due, candidate{desc: *desc, fresh: true})
			continue
		}

		elapsed := now.Sub(desc.LastAttemptAt)
		cadence := r.policy.EffectiveCadence(desc.Cadence(), desc.ConsecutiveFailures)
		if elapsed >= cadence {
			due = append(due, candidate{desc: *desc, overdue: elapsed - cadence})
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i], due[j]
		if a.fresh != b.fresh {
			return a.fresh
		}
		if a.overdue != b.overdue {
			return a.overdue > b.overdue
		}
		return a.desc.ID < b.desc.ID
	})

	result := make([]Descriptor, len(due))
	for i, c := range due {
		result[i] = c.desc
	}
	return result
}

// RecordAttempt applies the outcome of one finished (not cancelled) dispatch.
func (r *Registry) RecordAttempt(id string, result AttemptResult, now time.Time) (Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, ok := r.sources[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("source %q is not registered", id)
	}

	desc.LastAttemptAt = now.UTC()
	if result.Success {
		desc.LastSuccessAt = now.UTC()
		desc.ConsecutiveFailures = 0
		if result.ETag != "" || result.LastModified != "" {
			desc.ETag = result.ETag
			desc.LastModified = result.LastModified
		}
	} else {
		desc.ConsecutiveFailures++
	}

	return *desc, nil
}

func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.sources[id]
	if !ok {
		return Descriptor{}, false
	}
	return *desc, true
}

// All returns every registered source ordered by weight (heaviest first),
// then ID.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.sources[id])
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Weight > result[j].Weight
	})
	return result
}

func (r *Registry) ByCategory(category string) []Descriptor {
	var result []Descriptor
	for _, desc := range r.All() {
		if desc.Category == category {
			result = append(result, desc)
		}
	}
	return result
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) EffectiveCadence(desc Descriptor) time.Duration {
	return r.policy.EffectiveCadence(desc.Cadence(), desc.ConsecutiveFailures)
}
