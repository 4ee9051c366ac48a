package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gridsignals/urbangrid-simulator/model"
)

var (
	ErrZoneExists   = errors.New("zone already exists")
	ErrZoneNotFound = errors.New("zone not found")
	ErrZoneBadInput = errors.New("invalid zone")
)

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventZoneAdded EventType = iota
	EventCatalogReplaced
)

// Event is emitted to subscribers when the catalog changes, so long-lived
// servers can rebuild graphs and invalidate caches between sessions.
type Event struct {
	Type EventType
	Zone model.Zone // populated for EventZoneAdded
}

// ZoneCatalog is an in-memory, thread-safe store of zones. Zones are added
// at load time and treated as immutable afterwards; the engine only ever
// reads from the catalog.
type ZoneCatalog struct {
	mu    sync.RWMutex
	zones map[string]*model.Zone

	subs []func(Event)
}

// NewZoneCatalog constructs an empty catalog.
func NewZoneCatalog() *ZoneCatalog {
	return &ZoneCatalog{zones: make(map[string]*model.Zone)}
}

// AddZone inserts a zone. It returns an error for a nil/empty-ID zone, an
// unrecognised zone type, or a duplicate ID.
func (c *ZoneCatalog) AddZone(z *model.Zone) error {
	if z == nil || z.ID == "" {
		return fmt.Errorf("%w: nil or empty ID", ErrZoneBadInput)
	}
	if !model.KnownZoneType(string(z.Type)) {
		return fmt.Errorf("%w: %q has unknown type %q", ErrZoneBadInput, z.ID, z.Type)
	}

	c.mu.Lock()
	if _, exists := c.zones[z.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrZoneExists, z.ID)
	}
	c.zones[z.ID] = z
	event := Event{Type: EventZoneAdded, Zone: *z}
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Get returns the zone with the given ID, or nil if not found.
func (c *ZoneCatalog) Get(id string) *model.Zone {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.zones[id]
}

// Len returns the number of zones in the catalog.
func (c *ZoneCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.zones)
}

// Zones returns all zones sorted by ID, so full-snapshot recomputes and JSON
// output iterate in a stable order.
func (c *ZoneCatalog) Zones() []*model.Zone {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*model.Zone, 0, len(c.zones))
	for _, z := range c.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ZoneIDs returns all zone IDs sorted ascending.
func (c *ZoneCatalog) ZoneIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.zones))
	for id := range c.zones {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Districts returns the distinct district keys present in the catalog,
// sorted ascending. Districts are a grouping key only; they have no
// behavioural effect on the engine.
func (c *ZoneCatalog) Districts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, z := range c.zones {
		if z.District != "" {
			seen[z.District] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Replace swaps the whole catalog contents, used when a server hot-reloads
// zone data between simulation sessions. Validation matches AddZone.
func (c *ZoneCatalog) Replace(zones []*model.Zone) error {
	next := make(map[string]*model.Zone, len(zones))
	for _, z := range zones {
		if z == nil || z.ID == "" {
			return fmt.Errorf("%w: nil or empty ID", ErrZoneBadInput)
		}
		if !model.KnownZoneType(string(z.Type)) {
			return fmt.Errorf("%w: %q has unknown type %q", ErrZoneBadInput, z.ID, z.Type)
		}
		if _, dup := next[z.ID]; dup {
			return fmt.Errorf("%w: %q", ErrZoneExists, z.ID)
		}
		next[z.ID] = z
	}

	c.mu.Lock()
	c.zones = next
	event := Event{Type: EventCatalogReplaced}
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function.
func (c *ZoneCatalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
	idx := len(c.subs) - 1

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < 0 || idx >= len(c.subs) {
			return
		}
		c.subs = append(c.subs[:idx], c.subs[idx+1:]...)
		idx = -1
	}
}
