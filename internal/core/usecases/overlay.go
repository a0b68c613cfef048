package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/ports"
	"github.com/samirrijal/mapcore/internal/pkg/metrics"
)

// OverlayOptions configures an OverlayController. Start from
// DefaultOverlayOptions; zero size limits fall back to the defaults.
type OverlayOptions struct {
	AutoPan         bool
	AutoPanMargin   float64
	AutoPanDuration time.Duration
	// AutoPanDelay lets the host lay the overlay out before it is measured.
	AutoPanDelay time.Duration
	// PanelMaxMapArea switches to panel mode when the map area in square
	// pixels reaches it. Zero disables panel mode.
	PanelMaxMapArea float64
	OpenTimeout     time.Duration
	CloseTimeout    time.Duration
	MaxWidth        float64
	MaxHeight       float64
	MinWidth        float64
	MinHeight       float64
	Offset          domain.Pixel
	StayOpenOnZoom  bool
	CloseIcon       bool
}

// DefaultOverlayOptions returns the stock overlay behaviour.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{
		AutoPan:         true,
		AutoPanMargin:   34,
		AutoPanDuration: 500 * time.Millisecond,
		AutoPanDelay:    50 * time.Millisecond,
		PanelMaxMapArea: 160000,
		MaxWidth:        400,
		MaxHeight:       400,
		MinWidth:        85,
		MinHeight:       30,
		CloseIcon:       true,
	}
}

// OverlayEvent names a lifecycle notification.
type OverlayEvent string

const (
	OverlayEventOpen    OverlayEvent = "open"
	OverlayEventClose   OverlayEvent = "close"
	OverlayEventAutoPan OverlayEvent = "autopan"
)

// OpenOption adjusts a single Open call.
type OpenOption func(*openConfig)

type openConfig struct {
	width, height float64
	offset        *domain.Pixel
	autoPan       *bool
	zIndex        int
}

// WithSize requests an overlay box; it is clamped to the configured limits.
func WithSize(width, height float64) OpenOption {
	return func(c *openConfig) { c.width, c.height = width, height }
}

// WithOffset shifts the overlay relative to its anchor.
func WithOffset(p domain.Pixel) OpenOption {
	return func(c *openConfig) { c.offset = &p }
}

// WithAutoPan overrides OverlayOptions.AutoPan for one open.
func WithAutoPan(enabled bool) OpenOption {
	return func(c *openConfig) { c.autoPan = &enabled }
}

// WithZIndex sets the stacking order of the overlay.
func WithZIndex(z int) OpenOption {
	return func(c *openConfig) { c.zIndex = z }
}

// OverlayController owns the single info window of a map view.
// Phases go Closed → Opening → Open → Closing → Closed.
type OverlayController struct {
	view   ports.MapView
	logger *slog.Logger
	opts   OverlayOptions

	// opMu serializes open and close transitions.
	opMu sync.Mutex

	mu           sync.Mutex
	phase        domain.OverlayPhase
	position     *domain.GeoPoint
	content      domain.Content
	panel        bool
	autoPan      bool
	overlay      ports.Overlay
	shape        domain.PixelBounds
	overlaySubs  []func()
	pendingOpen  chan struct{}
	pendingClose chan struct{}
	panTimer     *time.Timer
	panGen       uint64
	handlers     map[OverlayEvent]map[uint64]func(domain.OverlayState)
	nextHandler  uint64
	destroyed    bool
	done         chan struct{}
}

// NewOverlayController creates a controller for view.
func NewOverlayController(view ports.MapView, opts OverlayOptions, logger *slog.Logger) (*OverlayController, error) {
	if view == nil {
		return nil, domain.ErrMapRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOverlayOptions()
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = def.MaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = def.MaxHeight
	}
	if opts.MinWidth <= 0 {
		opts.MinWidth = def.MinWidth
	}
	if opts.MinHeight <= 0 {
		opts.MinHeight = def.MinHeight
	}

	return &OverlayController{
		view:     view,
		logger:   logger.With("component", "overlay"),
		opts:     opts,
		phase:    domain.OverlayClosed,
		handlers: make(map[OverlayEvent]map[uint64]func(domain.OverlayState)),
		done:     make(chan struct{}),
	}, nil
}

// Open shows content at position, closing any overlay already shown.
// position accepts the shapes understood by ParsePosition. An invalid
// position fails with ErrInvalidPosition and leaves the state untouched.
func (c *OverlayController) Open(ctx context.Context, position any, content domain.Content, opts ...OpenOption) error {
	pos, err := ParsePosition(position)
	if err != nil {
		c.logger.Warn("open rejected", "error", err)
		metrics.OverlayOpens.WithLabelValues("invalid").Inc()
		return err
	}
	markup, native := RenderContent(content)

	cfg := openConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return domain.ErrDestroyed
	}
	busy := c.overlay != nil
	c.mu.Unlock()

	if busy {
		c.closeLocked(ctx)
	}

	c.mu.Lock()
	c.phase = domain.OverlayOpening
	cancel := make(chan struct{})
	c.pendingOpen = cancel
	c.mu.Unlock()

	if c.opts.OpenTimeout > 0 {
		t := time.NewTimer(c.opts.OpenTimeout)
		select {
		case <-t.C:
		case <-cancel:
			t.Stop()
			return c.abortOpen(cancel, domain.ErrCancelled)
		case <-ctx.Done():
			t.Stop()
			return c.abortOpen(cancel, ctx.Err())
		case <-c.done:
			t.Stop()
			return c.abortOpen(cancel, domain.ErrDestroyed)
		}
	}

	size := c.view.Size()
	panel := c.opts.PanelMaxMapArea > 0 && size.Area() >= c.opts.PanelMaxMapArea

	spec := ports.OverlaySpec{
		Position:  pos,
		HTML:      markup,
		Native:    native,
		Panel:     panel,
		Offset:    c.opts.Offset,
		ZIndex:    cfg.zIndex,
		CloseIcon: c.opts.CloseIcon,
	}
	if cfg.offset != nil {
		spec.Offset = *cfg.offset
	}
	spec.Width, spec.Height = c.boxSize(cfg.width, cfg.height)
	if panel {
		spec.Width = size.Width
	}

	ov, err := c.view.AddOverlay(ctx, spec)
	if err != nil {
		c.logger.Error("open failed", "error", err)
		return c.abortOpen(cancel, fmt.Errorf("open overlay: %w", err))
	}

	autoPan := c.opts.AutoPan
	if cfg.autoPan != nil {
		autoPan = *cfg.autoPan
	}

	c.mu.Lock()
	if c.pendingOpen == cancel {
		c.pendingOpen = nil
	}
	c.phase = domain.OverlayOpen
	c.position = &pos
	c.content = content
	c.panel = panel
	c.autoPan = autoPan && !panel
	c.overlay = ov
	c.shape = ov.Bounds()
	c.overlaySubs = c.subscribeView()
	if c.autoPan {
		c.schedulePanLocked()
	}
	state := c.stateLocked()
	c.mu.Unlock()

	metrics.OverlayOpens.WithLabelValues("opened").Inc()
	c.emit(OverlayEventOpen, state)
	return nil
}

func (c *OverlayController) abortOpen(cancel chan struct{}, err error) error {
	c.mu.Lock()
	if c.pendingOpen == cancel {
		c.pendingOpen = nil
	}
	c.phase = domain.OverlayClosed
	c.mu.Unlock()
	metrics.OverlayOpens.WithLabelValues("aborted").Inc()
	return err
}

func (c *OverlayController) boxSize(w, h float64) (float64, float64) {
	if w <= 0 {
		w = c.opts.MaxWidth
	}
	if h <= 0 {
		h = c.opts.MaxHeight
	}
	w = math.Max(c.opts.MinWidth, math.Min(c.opts.MaxWidth, w))
	h = math.Max(c.opts.MinHeight, math.Min(c.opts.MaxHeight, h))
	return w, h
}

// subscribeView wires the map events an open overlay reacts to. Callers hold c.mu.
func (c *OverlayController) subscribeView() []func() {
	subs := []func(){
		c.view.Subscribe(ports.EventBoundsChange, func(ports.MapEvent) {
			c.mu.Lock()
			if c.overlay != nil {
				c.shape = c.overlay.Bounds()
			}
			c.mu.Unlock()
		}),
		c.view.Subscribe(ports.EventUserClose, func(ports.MapEvent) {
			_ = c.Close(context.Background(), true)
		}),
	}
	if !c.opts.StayOpenOnZoom {
		subs = append(subs, c.view.Subscribe(ports.EventZoomChange, func(ports.MapEvent) {
			if c.opts.CloseTimeout > 0 {
				go func() { _ = c.Close(context.Background(), false) }()
				return
			}
			_ = c.Close(context.Background(), false)
		}))
	}
	return subs
}

// Close hides the overlay. Without force and with a CloseTimeout the close
// is delayed; a forced close or Destroy during the delay cancels it with
// ErrCancelled. Close always cancels a pending delayed open.
func (c *OverlayController) Close(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	if c.pendingOpen != nil {
		close(c.pendingOpen)
		c.pendingOpen = nil
	}
	if force && c.pendingClose != nil {
		close(c.pendingClose)
		c.pendingClose = nil
	}
	if c.overlay == nil {
		c.mu.Unlock()
		return nil
	}

	if !force && c.opts.CloseTimeout > 0 {
		cancel := make(chan struct{})
		if c.pendingClose != nil {
			close(c.pendingClose)
		}
		c.pendingClose = cancel
		c.phase = domain.OverlayClosing
		c.mu.Unlock()

		t := time.NewTimer(c.opts.CloseTimeout)
		select {
		case <-t.C:
		case <-cancel:
			t.Stop()
			return domain.ErrCancelled
		case <-ctx.Done():
			t.Stop()
			c.mu.Lock()
			if c.pendingClose == cancel {
				c.pendingClose = nil
				if c.overlay != nil {
					c.phase = domain.OverlayOpen
				}
			}
			c.mu.Unlock()
			return ctx.Err()
		}

		c.mu.Lock()
		if c.pendingClose != cancel {
			c.mu.Unlock()
			return domain.ErrCancelled
		}
		c.pendingClose = nil
		c.mu.Unlock()
	} else {
		c.mu.Unlock()
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.closeLocked(ctx)
	return nil
}

// closeLocked removes the rendered overlay. Callers hold opMu.
func (c *OverlayController) closeLocked(ctx context.Context) {
	c.mu.Lock()
	ov := c.overlay
	if ov == nil {
		c.phase = domain.OverlayClosed
		c.mu.Unlock()
		return
	}
	c.phase = domain.OverlayClosing
	c.stopPanLocked()
	subs := c.overlaySubs
	c.overlaySubs = nil
	if c.pendingClose != nil {
		close(c.pendingClose)
		c.pendingClose = nil
	}
	c.mu.Unlock()

	for _, unsub := range subs {
		unsub()
	}
	if err := c.view.RemoveOverlay(context.WithoutCancel(ctx), ov); err != nil {
		c.logger.Error("remove overlay", "error", err)
	}

	c.mu.Lock()
	c.overlay = nil
	c.position = nil
	c.panel = false
	c.shape = domain.PixelBounds{}
	c.phase = domain.OverlayClosed
	state := c.stateLocked()
	c.mu.Unlock()

	c.emit(OverlayEventClose, state)
}

// SetPosition moves the overlay anchor; an open overlay follows and is
// auto-panned again.
func (c *OverlayController) SetPosition(position any) error {
	pos, err := ParsePosition(position)
	if err != nil {
		c.logger.Warn("set position rejected", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return domain.ErrDestroyed
	}
	c.position = &pos
	if c.overlay == nil {
		return nil
	}
	if err := c.overlay.SetPosition(pos); err != nil {
		return fmt.Errorf("set overlay position: %w", err)
	}
	c.shape = c.overlay.Bounds()
	if c.autoPan {
		c.schedulePanLocked()
	}
	return nil
}

// SetContent replaces the overlay content.
func (c *OverlayController) SetContent(content domain.Content) error {
	markup, native := RenderContent(content)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return domain.ErrDestroyed
	}
	c.content = content
	if c.overlay == nil {
		return nil
	}
	if err := c.overlay.SetContent(markup, native); err != nil {
		return fmt.Errorf("set overlay content: %w", err)
	}
	c.shape = c.overlay.Bounds()
	return nil
}

// AutoPan pans the map so the open overlay sits inside the viewport minus
// AutoPanMargin. It does nothing in panel mode or when the shift is within
// one pixel.
func (c *OverlayController) AutoPan(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed || c.overlay == nil || c.panel {
		c.mu.Unlock()
		return nil
	}
	c.shape = c.overlay.Bounds()
	shape := c.shape
	c.mu.Unlock()

	offset := AutoPanOffset(shape, c.view.Size(), c.opts.AutoPanMargin)
	if math.Abs(offset.X) <= 1 && math.Abs(offset.Y) <= 1 {
		return nil
	}

	center := c.view.GlobalPixelCenter()
	target := domain.Pixel{X: center.X + offset.X, Y: center.Y + offset.Y}
	err := c.view.SetGlobalPixelCenter(ctx, target, c.view.Zoom(), ports.PanOptions{
		Duration: c.opts.AutoPanDuration,
	})
	if err != nil {
		return fmt.Errorf("auto pan: %w", err)
	}

	c.emit(OverlayEventAutoPan, c.State())
	return nil
}

// AutoPanOffset returns the pixel shift of the map center needed to bring
// shape inside a viewport of size shrunk by margin on each edge.
func AutoPanOffset(shape domain.PixelBounds, size domain.Size, margin float64) domain.Pixel {
	var off domain.Pixel
	switch {
	case shape.Min.X < margin:
		off.X = shape.Min.X - margin
	case shape.Max.X > size.Width-margin:
		off.X = shape.Max.X - size.Width + margin
	}
	switch {
	case shape.Min.Y < margin:
		off.Y = shape.Min.Y - margin
	case shape.Max.Y > size.Height-margin:
		off.Y = shape.Max.Y - size.Height + margin
	}
	return off
}

func (c *OverlayController) schedulePanLocked() {
	c.stopPanLocked()
	c.panGen++
	gen := c.panGen
	c.panTimer = time.AfterFunc(c.opts.AutoPanDelay, func() {
		c.mu.Lock()
		if c.panGen != gen || c.destroyed {
			c.mu.Unlock()
			return
		}
		c.panTimer = nil
		c.mu.Unlock()

		if err := c.AutoPan(context.Background()); err != nil {
			c.logger.Warn("auto pan failed", "error", err)
		}
	})
}

func (c *OverlayController) stopPanLocked() {
	if c.panTimer != nil {
		c.panTimer.Stop()
		c.panTimer = nil
	}
	c.panGen++
}

// State returns a snapshot of the controller state.
func (c *OverlayController) State() domain.OverlayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *OverlayController) stateLocked() domain.OverlayState {
	st := domain.OverlayState{
		IsOpen:      c.phase == domain.OverlayOpen || c.phase == domain.OverlayClosing,
		Phase:       c.phase,
		Content:     c.content,
		IsPanelMode: c.panel,
	}
	if c.position != nil {
		p := *c.position
		st.Position = &p
	}
	return st
}

// On registers handler for event and returns a function removing it.
func (c *OverlayController) On(event OverlayEvent, handler func(domain.OverlayState)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextHandler++
	id := c.nextHandler
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]func(domain.OverlayState))
	}
	c.handlers[event][id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

func (c *OverlayController) emit(event OverlayEvent, st domain.OverlayState) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	hs := make([]func(domain.OverlayState), 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(st)
	}
}

// Destroy force-closes the overlay and drops every handler. It is safe to
// call from any phase and more than once.
func (c *OverlayController) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.handlers = make(map[OverlayEvent]map[uint64]func(domain.OverlayState))
	if c.pendingOpen != nil {
		close(c.pendingOpen)
		c.pendingOpen = nil
	}
	if c.pendingClose != nil {
		close(c.pendingClose)
		c.pendingClose = nil
	}
	c.stopPanLocked()
	c.mu.Unlock()

	c.opMu.Lock()
	c.closeLocked(context.Background())
	c.mu.Lock()
	c.destroyed = true
	c.content = nil
	close(c.done)
	c.mu.Unlock()
	c.opMu.Unlock()
}

// RenderContent turns content into host markup or a native value.
// Sections render into the fixed header/body/footer layout; empty
// sections are omitted.
func RenderContent(content domain.Content) (markup string, native any) {
	switch v := content.(type) {
	case nil:
		return "", nil
	case domain.Markup:
		return string(v), nil
	case domain.Sections:
		var b strings.Builder
		b.WriteString(`<div class="balloon-content">`)
		if v.Header != "" {
			b.WriteString(`<div class="balloon-header">` + v.Header + `</div>`)
		}
		if v.Body != "" {
			b.WriteString(`<div class="balloon-body">` + v.Body + `</div>`)
		}
		if v.Footer != "" {
			b.WriteString(`<div class="balloon-footer">` + v.Footer + `</div>`)
		}
		b.WriteString(`</div>`)
		return b.String(), nil
	case domain.NativeContent:
		return "", v.Value
	default:
		return "", v
	}
}

// ParsePosition accepts [lat, lng] pairs, domain.GeoPoint, domain.LatLng,
// domain.LngLat and maps with lat/lng or latitude/longitude keys.
func ParsePosition(v any) (domain.GeoPoint, error) {
	var p domain.GeoPoint
	switch t := v.(type) {
	case domain.GeoPoint:
		p = t
	case *domain.GeoPoint:
		if t == nil {
			return p, domain.ErrInvalidPosition
		}
		p = *t
	case domain.LatLng:
		p = domain.GeoPoint{Lat: t.Lat, Lon: t.Lng}
	case domain.LngLat:
		p = t.Point()
	case [2]float64:
		p = domain.GeoPoint{Lat: t[0], Lon: t[1]}
	case []float64:
		if len(t) != 2 {
			return p, fmt.Errorf("%w: expected [lat, lng], got %d values", domain.ErrInvalidPosition, len(t))
		}
		p = domain.GeoPoint{Lat: t[0], Lon: t[1]}
	case []any:
		if len(t) != 2 {
			return p, fmt.Errorf("%w: expected [lat, lng], got %d values", domain.ErrInvalidPosition, len(t))
		}
		lat, ok1 := toFloat(t[0])
		lng, ok2 := toFloat(t[1])
		if !ok1 || !ok2 {
			return p, fmt.Errorf("%w: non-numeric coordinates", domain.ErrInvalidPosition)
		}
		p = domain.GeoPoint{Lat: lat, Lon: lng}
	case map[string]any:
		lat, okLat := toFloat(t["lat"])
		lng, okLng := toFloat(t["lng"])
		if !okLat || !okLng {
			lat, okLat = toFloat(t["latitude"])
			lng, okLng = toFloat(t["longitude"])
		}
		if !okLat || !okLng {
			return p, fmt.Errorf("%w: expected lat/lng or latitude/longitude keys", domain.ErrInvalidPosition)
		}
		p = domain.GeoPoint{Lat: lat, Lon: lng}
	default:
		return p, fmt.Errorf("%w: unsupported type %T", domain.ErrInvalidPosition, v)
	}

	if !p.Valid() {
		return domain.GeoPoint{}, fmt.Errorf("%w: (%v, %v) out of range", domain.ErrInvalidPosition, p.Lat, p.Lon)
	}
	return p, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
