package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateMarker is returned by Run under DuplicateReject when an
	// id appears more than once.
	ErrDuplicateMarker = errors.New("duplicate marker id")

	// ErrInvalidViewport is returned when a viewport corner is not a valid coordinate
	ErrInvalidViewport = errors.New("invalid viewport")
)

// DuplicatePolicy decides what happens to repeated marker ids
type DuplicatePolicy string

const (
	// DuplicateFirstWins keeps the first occurrence and drops the rest
	DuplicateFirstWins DuplicatePolicy = "first"
	// DuplicateReject fails the pass
	DuplicateReject DuplicatePolicy = "reject"
)

// ParseDuplicatePolicy accepts "first", "reject" or "" (first)
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case "", DuplicateFirstWins:
		return DuplicateFirstWins, nil
	case DuplicateReject:
		return DuplicateReject, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// Request is the input of one clustering pass
type Request struct {
	Markers  []Marker
	Viewport Viewport
	Zoom     int
}

// Result is the output of one clustering pass
type Result struct {
	PassID     string         `json:"passId"`
	Zoom       int            `json:"zoom"`
	Nodes      []Node         `json:"-"`
	Hints      DeclusterHints `json:"hints"`
	Skipped    []int          `json:"skipped,omitempty"`
	Duplicates []int          `json:"duplicates,omitempty"`
	Gated      bool           `json:"gated,omitempty"`

	// Items and Grid are the intermediate screen-space state of the pass,
	// kept for previews and diagnostics.
	Items []ProjectedItem `json:"-"`
	Grid  *Grid           `json:"-"`
}

// Option configures an Engine
type Option func(*engineConfig)

type engineConfig struct {
	threshold float64
	maxZoom   int
	minZoom   int
	policy    DuplicatePolicy
	logger    *zap.Logger
	metrics   *Metrics
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		threshold: DefaultThreshold,
		maxZoom:   DefaultMaxZoom,
		policy:    DuplicateFirstWins,
		logger:    zap.NewNop(),
	}
}

// WithThreshold sets the link distance and grid cell size in pixels
func WithThreshold(px float64) Option {
	return func(c *engineConfig) {
		if px > 0 {
			c.threshold = px
		}
	}
}

// WithMaxZoom caps decluster hints
func WithMaxZoom(z int) Option {
	return func(c *engineConfig) {
		c.maxZoom = z
	}
}

// WithMinZoom makes passes below zoom z return an empty, gated result
func WithMinZoom(z int) Option {
	return func(c *engineConfig) {
		c.minZoom = z
	}
}

// WithDuplicatePolicy sets how repeated marker ids are handled
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(c *engineConfig) {
		c.policy = p
	}
}

// WithLogger sets the logger; nil keeps the no-op logger
func WithLogger(l *zap.Logger) Option {
	return func(c *engineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records every pass on m
func WithMetrics(m *Metrics) Option {
	return func(c *engineConfig) {
		c.metrics = m
	}
}

// Engine runs full clustering passes. It keeps no state between calls and
// is safe for concurrent use.
type Engine struct {
	cfg engineConfig
}

// NewEngine creates an engine with the given options
func NewEngine(opts ...Option) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.logger = cfg.logger.With(zap.String("component", "engine"))
	return &Engine{cfg: cfg}
}

// Threshold returns the link distance in pixels
func (e *Engine) Threshold() float64 { return e.cfg.threshold }

// MaxZoom returns the decluster hint cap
func (e *Engine) MaxZoom() int { return e.cfg.maxZoom }

// Run projects, indexes, clusters and estimates decluster zooms for the
// request in one pass.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Viewport.Valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidViewport, req.Viewport.TopLeft)
	}

	start := time.Now()
	result := &Result{
		PassID: uuid.NewString(),
		Zoom:   req.Zoom,
		Nodes:  []Node{},
		Hints:  DeclusterHints{},
	}

	if req.Zoom < e.cfg.minZoom {
		result.Gated = true
		e.cfg.metrics.observe(result, time.Since(start))
		e.cfg.logger.Debug("pass gated",
			zap.String("pass_id", result.PassID),
			zap.Int("zoom", req.Zoom),
			zap.Int("min_zoom", e.cfg.minZoom))
		return result, nil
	}

	items, grid, stats := BuildWithStats(req.Markers, req.Viewport, e.cfg.threshold)
	if len(stats.Duplicates) > 0 && e.cfg.policy == DuplicateReject {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateMarker, stats.Duplicates)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Items = items
	result.Grid = grid
	result.Skipped = stats.Skipped
	result.Duplicates = stats.Duplicates
	result.Nodes = BuildClusters(items, grid)
	result.Hints = estimateDeclusterZoom(items, grid, req.Zoom, e.cfg.maxZoom)

	elapsed := time.Since(start)
	e.cfg.metrics.observe(result, elapsed)
	e.cfg.logger.Debug("pass complete",
		zap.String("pass_id", result.PassID),
		zap.Int("markers", len(req.Markers)),
		zap.Int("nodes", len(result.Nodes)),
		zap.Int("skipped", len(stats.Skipped)),
		zap.Int("duplicates", len(stats.Duplicates)),
		zap.Duration("elapsed", elapsed))

	return result, nil
}
