package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultMemoryBudget bounds the registry's estimated resident cost of
	// loaded plugin instances (spec.md §4.3, "default 1 GiB").
	DefaultMemoryBudget = 1 << 30
	// DefaultLoadTimeout bounds plugin instantiation (spec.md §4.3).
	DefaultLoadTimeout = 5 * time.Second
	// DefaultCooldown is how long a plugin stays unavailable after a load
	// timeout before the registry tries to instantiate it again.
	DefaultCooldown = 30 * time.Second
)

// extCandidate is one (tag, priority) pair registered for an extension;
// conflicts are resolved at Get time by Priority, then registration order.
type extCandidate struct {
	tag      string
	priority int
}

// Registry owns one Plugin instance per registered language tag, lazily
// instantiated and evicted under a memory budget (spec.md §4.3). It is safe
// for concurrent use; eviction runs under a short critical section so a
// concurrent Get never blocks on another language's instantiation.
type Registry struct {
	mu sync.Mutex

	byExt  map[string][]extCandidate
	states *lru.Cache[string, *loadState]
	order  []string // language tags in registration order, for deterministic eviction scans

	memoryBudget int64
	usedMemory   int64
	loadTimeout  time.Duration
	cooldown     time.Duration

	fallback Plugin
}

// NewRegistry builds a registry with the given plugin factories and a
// generic fallback used for any extension no factory claims. Each factory
// is probed once at construction time to learn its language tag and
// extensions; the instance produced by the probe is discarded, since
// steady-state lookups always go through the lazy load/evict path.
func NewRegistry(factories []Factory, fallback Plugin) (*Registry, error) {
	states, err := lru.New[string, *loadState](4096) // count cap far above realistic language counts; eviction is budget-driven, not count-driven
	if err != nil {
		return nil, fmt.Errorf("new plugin lru: %w", err)
	}

	r := &Registry{
		byExt:        make(map[string][]extCandidate),
		states:       states,
		memoryBudget: DefaultMemoryBudget,
		loadTimeout:  DefaultLoadTimeout,
		cooldown:     DefaultCooldown,
		fallback:     fallback,
	}

	for _, f := range factories {
		tag, err := probeTag(f)
		if err != nil {
			return nil, err
		}
		r.order = append(r.order, tag)
		r.states.Add(tag, &loadState{factory: f})
		for _, ext := range f.Extensions {
			r.byExt[normalizeExt(ext)] = append(r.byExt[normalizeExt(ext)], extCandidate{tag: tag, priority: f.Priority})
		}
	}
	return r, nil
}

func probeTag(f Factory) (string, error) {
	p, err := f.New()
	if err != nil {
		return "", fmt.Errorf("probe plugin: %w", err)
	}
	if closer, ok := p.(interface{ Close() }); ok {
		closer.Close()
	}
	return p.LanguageTag(), nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// candidatesFor resolves extension conflicts by declared Priority (higher
// first), then registration order for determinism.
func (r *Registry) candidatesFor(relativePath string) []extCandidate {
	ext := normalizeExt(filepath.Ext(relativePath))
	cands := append([]extCandidate(nil), r.byExt[ext]...)
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && cands[j].priority > cands[j-1].priority; j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}
	return cands
}

// Get resolves the plugin for relativePath, instantiating it if necessary.
// When no dedicated plugin claims the path, or every candidate is
// unavailable (load timeout cooldown, construction failure), it returns the
// generic fallback — never an error for "no dedicated plugin", since that
// is the expected steady state for most repositories.
func (r *Registry) Get(ctx context.Context, relativePath string) (Plugin, error) {
	candidates := r.candidatesFor(relativePath)
	if len(candidates) == 0 {
		return r.fallback, nil
	}

	var lastErr error
	for _, c := range candidates {
		p, err := r.load(ctx, c.tag)
		if err != nil {
			lastErr = err
			continue
		}
		if p != nil && p.Supports(relativePath) {
			return p, nil
		}
	}
	return r.fallback, lastErr
}

// load returns the live instance for tag, instantiating it under
// loadTimeout if it is not already loaded. On timeout the language is
// marked unavailable for cooldown and (nil, nil) is returned so the caller
// degrades to the fallback for that file rather than erroring.
func (r *Registry) load(ctx context.Context, tag string) (Plugin, error) {
	r.mu.Lock()
	st, ok := r.states.Get(tag)
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("unknown plugin %q", tag)
	}
	if st.instance != nil {
		st.lastUsed = time.Now()
		r.mu.Unlock()
		return st.instance, nil
	}
	if time.Now().Before(st.unavailableUntil) {
		r.mu.Unlock()
		return nil, nil // still cooling down after a prior load timeout
	}
	factory := st.factory
	r.mu.Unlock()

	type result struct {
		p   Plugin
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("plugin %q construction panicked: %v", tag, rec)}
			}
		}()
		p, err := factory.New()
		done <- result{p: p, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		r.install(tag, res.p, factory.ApproxMemoryBytes)
		return res.p, nil
	case <-time.After(r.loadTimeout):
		r.mu.Lock()
		st.unavailableUntil = time.Now().Add(r.cooldown)
		r.mu.Unlock()
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) install(tag string, p Plugin, approxBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states.Get(tag)
	if !ok {
		return
	}
	st.instance = p
	st.lastUsed = time.Now()
	r.usedMemory += approxBytes
	r.evictLocked()
}

// evictLocked drops the least-recently-used loaded instances until the
// registry is back under its memory budget. Must be called with r.mu held.
func (r *Registry) evictLocked() {
	for r.usedMemory > r.memoryBudget {
		oldestTag, oldestTime, found := "", time.Time{}, false
		for _, tag := range r.order {
			st, ok := r.states.Peek(tag)
			if !ok || st.instance == nil {
				continue
			}
			if !found || st.lastUsed.Before(oldestTime) {
				oldestTag, oldestTime, found = tag, st.lastUsed, true
			}
		}
		if !found {
			return // nothing loaded left to evict; budget is aspirational at this point
		}
		st, _ := r.states.Get(oldestTag)
		if closer, ok := st.instance.(interface{ Close() }); ok {
			closer.Close()
		}
		r.usedMemory -= st.factory.ApproxMemoryBytes
		st.instance = nil
	}
}

// Fallback returns the generic, always-available fallback plugin.
func (r *Registry) Fallback() Plugin {
	return r.fallback
}

// State is a plugin's current lifecycle position, reported by Status
// (spec.md §6.1 list_plugins/get_status).
type State string

const (
	StateLoaded           State = "loaded"
	StateEvicted          State = "evicted"
	StateUnavailableUntil State = "unavailable_until"
)

// Status is one registered language's introspection snapshot.
type Status struct {
	Language   string
	Extensions []string
	State      State
	// UnavailableUntilNs is set only when State is StateUnavailableUntil.
	UnavailableUntilNs int64
}

// Status reports every registered language's extensions and lifecycle
// state, in registration order, for list_plugins and get_status.
func (r *Registry) Status() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	exts := make(map[string][]string)
	for ext, cands := range r.byExt {
		for _, c := range cands {
			exts[c.tag] = append(exts[c.tag], ext)
		}
	}

	out := make([]Status, 0, len(r.order))
	for _, tag := range r.order {
		st, ok := r.states.Peek(tag)
		if !ok {
			continue
		}
		s := Status{Language: tag, Extensions: exts[tag]}
		switch {
		case st.instance != nil:
			s.State = StateLoaded
		case time.Now().Before(st.unavailableUntil):
			s.State = StateUnavailableUntil
			s.UnavailableUntilNs = st.unavailableUntil.UnixNano()
		default:
			s.State = StateEvicted
		}
		out = append(out, s)
	}
	return out
}

// Close evicts and closes every loaded plugin instance.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tag := range r.order {
		st, ok := r.states.Peek(tag)
		if !ok || st.instance == nil {
			continue
		}
		if closer, ok := st.instance.(interface{ Close() }); ok {
			closer.Close()
		}
		st.instance = nil
	}
	r.usedMemory = 0
}
