package progress

import (
	"sync"
	"time"
)

// Entry is one posted history line.
type Entry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// UpdateFunc receives the current-status message each time it changes.
type UpdateFunc func(monitor, message string)

// PostFunc receives each history entry as it is posted.
type PostFunc func(monitor string, entry Entry)

// Monitor tracks one named stream of run activity. All methods are
// thread-safe.
type Monitor struct {
	name string

	mu      sync.Mutex
	current string
	past    []Entry
	updates []UpdateFunc
	posts   []PostFunc

	clock func() time.Time
}

// NewMonitor creates an empty monitor with the given name.
func NewMonitor(name string) *Monitor {
	return &Monitor{name: name, clock: time.Now}
}

// Name returns the monitor's name.
func (m *Monitor) Name() string { return m.name }

// OnUpdate registers a callback for current-status changes.
func (m *Monitor) OnUpdate(fn UpdateFunc) {
	m.mu.Lock()
	m.updates = append(m.updates, fn)
	m.mu.Unlock()
}

// OnPost registers a callback for posted history entries.
func (m *Monitor) OnPost(fn PostFunc) {
	m.mu.Lock()
	m.posts = append(m.posts, fn)
	m.mu.Unlock()
}

// Update replaces the current-status message and notifies update
// callbacks. The message is transient: it describes work in flight
// and never enters the history.
func (m *Monitor) Update(message string) {
	m.mu.Lock()
	m.current = message
	listeners := m.updates
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(m.name, message)
	}
}

// Post appends a timestamped entry to the history and clears the
// current-status message. An empty message posts the current-status
// message instead, so a finished action can promote its last update
// to the record.
func (m *Monitor) Post(message string) {
	m.mu.Lock()
	if message == "" {
		message = m.current
	}
	entry := Entry{At: m.clock(), Message: message}
	m.past = append(m.past, entry)
	m.current = ""
	listeners := m.posts
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(m.name, entry)
	}
}

// Current returns the in-flight status message, if any.
func (m *Monitor) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns a copy of the posted entries in order.
func (m *Monitor) History() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.past))
	copy(out, m.past)
	return out
}

// Registry hands out named monitors, creating each on first request.
// A registry is scoped to one run, so monitor names never collide
// across concurrent runs.
type Registry struct {
	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewRegistry creates an empty monitor registry.
func NewRegistry() *Registry {
	return &Registry{monitors: make(map[string]*Monitor)}
}

// Monitor returns the named monitor, creating it if needed.
func (r *Registry) Monitor(name string) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.monitors[name]; ok {
		return m
	}
	m := NewMonitor(name)
	r.monitors[name] = m
	return m
}

// Names returns the names of all created monitors.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.monitors))
	for name := range r.monitors {
		names = append(names, name)
	}
	return names
}
