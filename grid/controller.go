package grid

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Default settings.
const (
	DefaultResolution   = 20
	DefaultDisplayScale = 2
)

// State is the controller lifecycle state.
type State int

const (
	Empty State = iota
	Populated
)

func (s State) String() string {
	if s == Populated {
		return "populated"
	}
	return "empty"
}

// Change is delivered to subscribers after every successful update.
// Rebuilt is false when only the display scale changed.
type Change struct {
	Snapshot     *Snapshot
	DisplayScale int
	Rebuilt      bool
}

// Controller owns the observation store and the published grid. Writers
// (Load, SetResolution, SetDisplayScale) are serialised; readers go through
// an atomic pointer and always see a complete snapshot.
type Controller struct {
	mu  sync.Mutex // serialises writers
	seq uint64     // bumped under mu for every published change

	store      Store
	resolution atomic.Int64
	scale      atomic.Int64
	snap       atomic.Pointer[Snapshot]
	kernels    KernelSet
	logger     *zap.Logger

	subMu  sync.RWMutex
	subs   map[int]func(Change)
	nextID int

	dispatchMu sync.Mutex
	delivered  uint64
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger. nil is ignored.
func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = orNop(l) }
}

// WithKernels replaces the built-in kernels. The margin follows the new radii.
func WithKernels(ks KernelSet) ControllerOption {
	return func(c *Controller) { c.kernels = ks }
}

// WithResolution sets the initial resolution. Non-positive values are ignored.
func WithResolution(r int) ControllerOption {
	return func(c *Controller) {
		if r > 0 {
			c.resolution.Store(int64(r))
		}
	}
}

// WithDisplayScale sets the initial display scale. Non-positive values are ignored.
func WithDisplayScale(z int) ControllerOption {
	return func(c *Controller) {
		if z > 0 {
			c.scale.Store(int64(z))
		}
	}
}

// NewController returns an Empty controller at the default settings.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		kernels: DefaultKernels(),
		logger:  zap.NewNop(),
		subs:    make(map[int]func(Change)),
	}
	c.resolution.Store(DefaultResolution)
	c.scale.Store(DefaultDisplayScale)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load replaces the store and rebuilds the grid at the current resolution.
// An empty store is a no-op. On error the previous grid stays published.
func (c *Controller) Load(store Store) error {
	if len(store) == 0 {
		c.logger.Debug("load ignored, empty store")
		return nil
	}

	var r int
	snap, seq, err := c.commit(func() (*Snapshot, error) {
		r = int(c.resolution.Load())
		snap, err := Build(store, r, c.kernels)
		if err != nil {
			return nil, err
		}
		c.store = store.Clone()
		return snap, nil
	})
	if err != nil {
		c.logger.Warn("grid build failed", zap.Int("observations", len(store)), zap.Error(err))
		return err
	}

	c.logger.Info("grid built",
		zap.String("snapshot", snap.ID.String()),
		zap.Int("observations", snap.ObservationCount),
		zap.Int("resolution", r),
		zap.Int("sizeX", snap.SizeX()),
		zap.Int("sizeY", snap.SizeY()))
	c.notify(seq, Change{Snapshot: snap, DisplayScale: c.DisplayScale(), Rebuilt: true})
	return nil
}

// SetResolution changes the world units per cell and fully re-quantizes the
// store. With no observations loaded only the setting is recorded.
func (c *Controller) SetResolution(r int) error {
	if r <= 0 {
		return settingError("resolution", r)
	}

	snap, seq, err := c.commit(func() (*Snapshot, error) {
		if len(c.store) == 0 {
			c.resolution.Store(int64(r))
			return nil, nil
		}
		snap, err := Build(c.store, r, c.kernels)
		if err != nil {
			return nil, err
		}
		c.resolution.Store(int64(r))
		return snap, nil
	})
	if err != nil {
		c.logger.Warn("grid rebuild failed", zap.Int("resolution", r), zap.Error(err))
		return err
	}
	if snap == nil {
		return nil
	}

	c.logger.Info("grid rebuilt",
		zap.String("snapshot", snap.ID.String()),
		zap.Int("resolution", r),
		zap.Int("sizeX", snap.SizeX()),
		zap.Int("sizeY", snap.SizeY()))
	c.notify(seq, Change{Snapshot: snap, DisplayScale: c.DisplayScale(), Rebuilt: true})
	return nil
}

// SetDisplayScale records the pixels-per-cell used by renderers. The grid
// is not recomputed.
func (c *Controller) SetDisplayScale(z int) error {
	if z <= 0 {
		return settingError("displayScale", z)
	}
	c.mu.Lock()
	c.scale.Store(int64(z))
	snap := c.snap.Load()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	if snap != nil {
		c.notify(seq, Change{Snapshot: snap, DisplayScale: z})
	}
	return nil
}

// commit runs build under the writer lock and publishes its snapshot. A nil
// snapshot with a nil error publishes nothing. The returned sequence number
// orders the resulting Change against other writers.
func (c *Controller) commit(build func() (*Snapshot, error)) (*Snapshot, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := build()
	if err != nil || snap == nil {
		return nil, 0, err
	}
	c.snap.Store(snap)
	c.seq++
	return snap, c.seq, nil
}

// Check reports whether store would build at the current resolution without
// building it: every observation must be valid and the grid within MaxCells.
func (c *Controller) Check(store Store) error {
	if err := store.Validate(); err != nil {
		return err
	}
	return ComputeExtent(store, c.Resolution(), c.kernels.Margin()).CheckSize()
}

// Snapshot returns the published grid.
func (c *Controller) Snapshot() (*Snapshot, error) {
	s := c.snap.Load()
	if s == nil {
		return nil, &EmptyStateError{Op: "snapshot"}
	}
	return s, nil
}

// Classify returns the class of a cell in the published grid.
func (c *Controller) Classify(col, row int) (CellClass, error) {
	s := c.snap.Load()
	if s == nil {
		return Free, &EmptyStateError{Op: "classify"}
	}
	return s.Classify(col, row)
}

func (c *Controller) Resolution() int   { return int(c.resolution.Load()) }
func (c *Controller) DisplayScale() int { return int(c.scale.Load()) }

// State reports whether a grid has been published.
func (c *Controller) State() State {
	if c.snap.Load() == nil {
		return Empty
	}
	return Populated
}

// Store returns a copy of the loaded observations.
func (c *Controller) Store() Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Clone()
}

// Reset drops all observations and returns to Empty. Settings are kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.store = nil
	c.snap.Store(nil)
	c.seq++
	c.mu.Unlock()
	c.logger.Info("grid reset")
}

// Subscribe registers fn for every future Change and returns a function
// that removes it. fn runs on the writer's goroutine after the update is
// published. Nothing is sent while the controller is Empty.
//
// Changes are delivered in commit order; a Change overtaken by a newer one
// is dropped, so the last Change seen always matches Snapshot. fn must not
// call Load, SetResolution or SetDisplayScale.
func (c *Controller) Subscribe(fn func(Change)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) notify(seq uint64, ch Change) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if seq <= c.delivered {
		return
	}
	c.delivered = seq

	c.subMu.RLock()
	fns := make([]func(Change), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.RUnlock()

	for _, fn := range fns {
		fn(ch)
	}
}
