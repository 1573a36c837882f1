package cluster

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// UpdateHandler receives every result a Tracker computes
type UpdateHandler func(*Result)

// Tracker holds the caller-side view state (markers, viewport, zoom and
// timeline) and recomputes a full clustering pass whenever any of it changes.
type Tracker struct {
	// notifyMu is held from mutation through handler delivery so handlers
	// see passes in the order they were computed.
	notifyMu     sync.Mutex
	mu           sync.RWMutex
	engine       *Engine
	markers      *UniqueRing[int, Marker]
	viewport     Viewport
	zoom         int
	timeline     *YearRange
	nearestLimit int
	last         *Result
	handlers     []UpdateHandler
	logger       *zap.Logger
}

// TrackerOption configures a Tracker
type TrackerOption func(*Tracker)

// WithCapacity sets how many markers the tracker keeps before evicting the oldest
func WithCapacity(n int) TrackerOption {
	return func(t *Tracker) {
		t.markers = NewUniqueRing(n, markerID)
	}
}

// WithNearestLimit sets how many markers Nearest returns
func WithNearestLimit(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.nearestLimit = n
		}
	}
}

// WithInitialZoom sets the zoom used before the first SetZoom
func WithInitialZoom(z int) TrackerOption {
	return func(t *Tracker) {
		t.zoom = z
	}
}

// WithTrackerLogger sets the tracker logger
func WithTrackerLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

func markerID(m Marker) int { return m.ID }

// NewTracker creates a tracker that runs passes on engine. A nil engine
// uses NewEngine() defaults.
func NewTracker(engine *Engine, opts ...TrackerOption) *Tracker {
	if engine == nil {
		engine = NewEngine()
	}
	t := &Tracker{
		engine:       engine,
		markers:      NewUniqueRing(DefaultRingCapacity, markerID),
		nearestLimit: DefaultNearestLimit,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(zap.String("component", "tracker"))
	return t
}

// OnUpdate registers a handler called after every successful recompute.
// Handlers run one pass at a time and must not mutate the tracker.
func (t *Tracker) OnUpdate(h UpdateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, h)
}

// SetViewport stores the visible area and recomputes
func (t *Tracker) SetViewport(ctx context.Context, v Viewport) error {
	return t.update(ctx, func() {
		t.viewport = v
	})
}

// SetZoom stores the current zoom, stamps it onto every stored marker and
// recomputes.
func (t *Tracker) SetZoom(ctx context.Context, zoom int) error {
	return t.update(ctx, func() {
		t.applyZoom(zoom)
	})
}

// SetView stores the viewport and, when zoom is non-nil, the zoom, then
// recomputes once.
func (t *Tracker) SetView(ctx context.Context, v Viewport, zoom *int) error {
	return t.update(ctx, func() {
		t.viewport = v
		if zoom != nil {
			t.applyZoom(*zoom)
		}
	})
}

func (t *Tracker) applyZoom(zoom int) {
	t.zoom = zoom
	t.markers.Update(func(m Marker) Marker {
		m.NativeZoom = zoom
		return m
	})
}

// Insert adds markers at the current zoom and recomputes. Ids already
// present are ignored.
func (t *Tracker) Insert(ctx context.Context, markers ...Marker) error {
	return t.update(ctx, func() {
		for _, m := range markers {
			m.NativeZoom = t.zoom
			added, evicted := t.markers.Push(m)
			if !added {
				t.logger.Debug("marker already tracked", zap.Int("id", m.ID))
			}
			if evicted != nil {
				t.logger.Debug("marker evicted", zap.Int("id", evicted.ID))
			}
		}
	})
}

// Remove drops markers by id and recomputes
func (t *Tracker) Remove(ctx context.Context, ids ...int) error {
	return t.update(ctx, func() {
		for _, id := range ids {
			t.markers.Remove(id)
		}
	})
}

// Reset drops every marker and recomputes
func (t *Tracker) Reset(ctx context.Context) error {
	return t.update(ctx, func() {
		t.markers.Clear()
	})
}

// SetTimeline restricts passes to markers whose year is inside r. A nil r
// removes the restriction.
func (t *Tracker) SetTimeline(ctx context.Context, r *YearRange) error {
	return t.update(ctx, func() {
		if r == nil {
			t.timeline = nil
			return
		}
		rc := *r
		t.timeline = &rc
	})
}

// Recompute runs a pass over the current state without changing it
func (t *Tracker) Recompute(ctx context.Context) error {
	return t.update(ctx, func() {})
}

// update applies mutate and runs a full pass under mu, then notifies
// handlers outside it while still holding notifyMu.
func (t *Tracker) update(ctx context.Context, mutate func()) error {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	mutate()

	markers := t.markers.Values()
	if t.timeline != nil {
		markers = FilterByYears(markers, *t.timeline)
	}

	result, err := t.engine.Run(ctx, Request{
		Markers:  markers,
		Viewport: t.viewport,
		Zoom:     t.zoom,
	})
	if err != nil {
		t.mu.Unlock()
		t.logger.Warn("recompute failed", zap.Error(err))
		return err
	}

	t.last = result
	handlers := make([]UpdateHandler, len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.Unlock()

	for _, h := range handlers {
		h(result)
	}
	return nil
}

// Result returns the last computed result, or nil before the first pass
func (t *Tracker) Result() *Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// DeclusterZoom returns the last hint for a marker id
func (t *Tracker) DeclusterZoom(id int) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return 0, false
	}
	z, ok := t.last.Hints[id]
	return z, ok
}

// Markers returns the stored markers, oldest first
func (t *Tracker) Markers() []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.markers.Values()
}

// HasMarkers returns true if at least one marker is tracked
func (t *Tracker) HasMarkers() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.markers.Len() > 0
}

// Viewport returns the last viewport
func (t *Tracker) Viewport() Viewport {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.viewport
}

// Zoom returns the current zoom
func (t *Tracker) Zoom() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.zoom
}

// Timeline returns a copy of the active year range, or nil
func (t *Tracker) Timeline() *YearRange {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.timeline == nil {
		return nil
	}
	r := *t.timeline
	return &r
}

// Nearest returns the markers closest to position, limited by the
// tracker's nearest limit. The timeline filter applies.
func (t *Tracker) Nearest(position Coordinate) []NearbyMarker {
	t.mu.RLock()
	markers := t.markers.Values()
	if t.timeline != nil {
		markers = FilterByYears(markers, *t.timeline)
	}
	limit := t.nearestLimit
	t.mu.RUnlock()

	return NearestMarkers(markers, position, limit)
}
