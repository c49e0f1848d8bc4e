// Package page holds the interactive state of the portfolio page: which section
// is highlighted, how far the visitor has scrolled, whether the mobile menu is
// open, and the decorative background field generated when the page mounts.
//
// A Controller is created once per page load. The view layer subscribes to it
// and re-renders from the State snapshots it publishes.
package page

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/Zachkp/skycode/internal/xslog"
)

var (
	ErrAlreadyStarted = errors.New("page controller already started")
	ErrStopped        = errors.New("page controller stopped")
)

// Renderer is the view collaborator that can move the viewport.
type Renderer interface {
	// HasElement reports whether the rendered view contains the section.
	HasElement(section Section) bool
	ScrollIntoView(section Section, smooth bool)
}

// ScrollSource delivers vertical scroll offsets of the viewport.
type ScrollSource interface {
	SubscribeScroll(handler func(offset float64)) (release func() error, err error)
}

// State is a point-in-time copy of the controller's state.
type State struct {
	ActiveSection Section           `json:"active_section"`
	ScrollOffset  float64           `json:"scroll_offset"`
	MenuOpen      bool              `json:"menu_open"`
	Field         []DecorativeToken `json:"field,omitempty"`
}

type Controller struct {
	id     string
	logger *slog.Logger

	mu        sync.Mutex
	active    Section
	scroll    float64
	menuOpen  bool
	field     []DecorativeToken
	renderer  Renderer
	release   func() error
	started   bool
	stopped   bool
	observers map[uint64]func(State)
	nextObs   uint64
}

type options struct {
	id        string
	logger    *slog.Logger
	rng       *rand.Rand
	fieldSize int
	renderer  Renderer
}

type Option func(*options)

func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRand sets the random source used for the decorative field.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

func WithFieldSize(n int) Option {
	return func(o *options) { o.fieldSize = n }
}

func WithRenderer(r Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// NewController mounts a page: home is active, the menu is closed and the
// decorative field is generated. The field is never regenerated.
func NewController(opts ...Option) *Controller {
	o := options{fieldSize: DefaultFieldSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Controller{
		id:        o.id,
		logger:    o.logger,
		active:    SectionHome,
		field:     GenerateField(o.rng, o.fieldSize),
		renderer:  o.renderer,
		observers: make(map[uint64]func(State)),
	}
}

func (c *Controller) ID() string {
	return c.id
}

// SetRenderer replaces the view collaborator. A nil renderer disables scroll
// requests.
func (c *Controller) SetRenderer(r Renderer) {
	c.mu.Lock()
	c.renderer = r
	c.mu.Unlock()
}

// Start registers the scroll handler with src. A started controller must be
// detached or stopped before another source can be attached.
func (c *Controller) Start(src ScrollSource) error {
	c.mu.Lock()
	switch {
	case c.stopped:
		c.mu.Unlock()
		return ErrStopped
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	release, err := src.SubscribeScroll(c.HandleScroll)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return fmt.Errorf("subscribing to scroll: %w", err)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		if err := release(); err != nil {
			c.logger.Warn("releasing scroll subscription after stop", xslog.Error(err))
		}
		return ErrStopped
	}
	c.release = release
	c.mu.Unlock()
	return nil
}

// Detach releases the scroll subscription taken by Start and leaves the rest
// of the state alone, so a later Start can attach a new source. It is a no-op
// on a controller that is not started.
func (c *Controller) Detach() error {
	c.mu.Lock()
	release := c.release
	c.release = nil
	c.started = false
	c.mu.Unlock()

	return releaseScroll(release)
}

// Stop releases the scroll subscription and detaches the renderer. It is safe
// to call more than once and on a controller that was never started. A
// stopped controller cannot be started again.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	release := c.release
	c.release = nil
	c.renderer = nil
	c.mu.Unlock()

	return releaseScroll(release)
}

// releaseScroll calls release, reporting a panic as an error.
func releaseScroll(release func() error) (err error) {
	if release == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("releasing scroll subscription: panic: %v", r)
		}
	}()
	if err := release(); err != nil {
		return fmt.Errorf("releasing scroll subscription: %w", err)
	}
	return nil
}

// HandleScroll records a scroll offset. Negative offsets clamp to zero and
// non-finite ones are dropped. The active section is never touched.
func (c *Controller) HandleScroll(offset float64) {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return
	}
	if offset < 0 {
		c.logger.Debug("clamping negative scroll offset", xslog.Offset(offset))
		offset = 0
	}

	c.mu.Lock()
	if c.scroll == offset {
		c.mu.Unlock()
		return
	}
	c.scroll = offset
	c.mu.Unlock()

	c.notify()
}

// NavigateTo highlights section, closes the mobile menu and asks the renderer
// to bring the section into view. The scroll request is skipped when the
// renderer has no such element.
func (c *Controller) NavigateTo(section Section) {
	c.mu.Lock()
	c.active = section
	c.menuOpen = false
	r := c.renderer
	c.mu.Unlock()

	if r != nil && r.HasElement(section) {
		r.ScrollIntoView(section, true)
	}

	c.notify()
}

func (c *Controller) ToggleMenu() {
	c.mu.Lock()
	c.menuOpen = !c.menuOpen
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) ActiveSection() Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) ScrollOffset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scroll
}

func (c *Controller) MenuOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.menuOpen
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned cancel func may be called more than once.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	if len(c.observers) == 0 {
		c.mu.Unlock()
		return
	}
	st := c.snapshotLocked()
	fns := make([]func(State), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (c *Controller) snapshotLocked() State {
	field := make([]DecorativeToken, len(c.field))
	copy(field, c.field)
	return State{
		ActiveSection: c.active,
		ScrollOffset:  c.scroll,
		MenuOpen:      c.menuOpen,
		Field:         field,
	}
}
