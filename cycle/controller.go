package cycle

import (
	"sync/atomic"

	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/internal/queue"
	"github.com/arloliu/go-seamctl/logger"
	"github.com/arloliu/go-seamctl/recipe"
)

// Signals is the fieldbus view of the controller. *fieldbus.Bus implements it.
type Signals interface {
	Bool(sig fieldbus.Signal) bool
	Field(sig fieldbus.Signal) uint32
	String(sig fieldbus.Signal) string
	BoolSender(sig fieldbus.Signal) fieldbus.BoolSender
	FieldSender(sig fieldbus.Signal) fieldbus.FieldSender
}

// Process is the processing collaborator that acquires images, welds and calibrates.
// Methods are called on the cyclic task and must not block; completion is reported back through
// Controller.Post.
type Process interface {
	CycleStarted(p Product)
	CycleStopped(s StopCycle)
	SeamSeriesStarted(number int)
	SeamSeriesStopped(s StopSeamSeries)
	SeamStarted(series, seam int)
	SeamStopped(s StopSeam)
	Calibrate(calibrationType uint32)
	HomeAxis()
}

// Recipes resolves product recipes. *recipe.Book implements it.
type Recipes interface {
	Product(productType uint32) (*recipe.Product, error)
}

// Observer is notified of every effect after the controller carried it out.
type Observer func(c Context, fx Effect)

// SeamHolder may keep the open seam open after the seam start signal fell, for example until a
// measurement device delivered its verdict. The holder ends the hold with Controller.ReleaseSeam.
type SeamHolder interface {
	// HoldSeam is called on the falling edge of the seam start signal. Returning true defers
	// the seam stop and every closing edge after it.
	HoldSeam() bool
}

// Controller drives Transition from the fieldbus and executes its effects.
type Controller struct {
	logger  logger.Logger
	params  Params
	signals Signals
	process Process
	recipes Recipes
	serial  *Serial

	external atomic.Uint32

	ctx        Context
	product    *recipe.Product
	selections recipe.SelectionTable

	cycleEdge       Edge
	seriesEdge      Edge
	seamEdge        Edge
	calibrationEdge Edge
	homeEdge        Edge
	quitEdge        Edge

	events    *queue.Queue[Event]
	observers []Observer

	holder   SeamHolder
	holding  bool
	deferred []Event

	bools  map[fieldbus.Signal]fieldbus.BoolSender
	fields map[fieldbus.Signal]fieldbus.FieldSender
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default is logger.GetLogger().
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSerial sets the serial used by the clock product number policy.
func WithSerial(s *Serial) Option {
	return func(c *Controller) {
		if s != nil {
			c.serial = s
		}
	}
}

// WithRecipes sets the recipe book. Without one every product has an empty selection table.
func WithRecipes(r Recipes) Option {
	return func(c *Controller) { c.recipes = r }
}

// New creates a controller. Call Start once before the first Tick.
func New(signals Signals, process Process, params Params, opts ...Option) *Controller {
	c := &Controller{
		logger:  logger.GetLogger(),
		params:  params,
		signals: signals,
		process: process,
		serial:  NewSerial(nil),
		events:  queue.New[Event](),
		bools:   make(map[fieldbus.Signal]fieldbus.BoolSender),
		fields:  make(map[fieldbus.Signal]fieldbus.FieldSender),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cycle")

	return c
}

// AddObserver registers an observer. Observers run on the cyclic task.
func (c *Controller) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// SetSeamHolder installs the holder consulted before an edge-driven seam stop.
func (c *Controller) SetSeamHolder(h SeamHolder) {
	c.holder = h
}

// Holding reports whether the open seam is held past its stop edge.
func (c *Controller) Holding() bool {
	return c.holding
}

// ReleaseSeam ends a hold: the seam is closed and the closing edges deferred during the hold
// are applied in order. It must only be called from the cyclic task.
func (c *Controller) ReleaseSeam() {
	if !c.holding {
		return
	}
	c.holding = false
	deferred := c.deferred
	c.deferred = nil

	if c.ctx.SeamActive {
		c.Apply(SeamStopEvent{})
	}
	for _, ev := range deferred {
		c.Apply(ev)
	}
}

// Start publishes the initial outputs.
func (c *Controller) Start() {
	ctx, fx := Initial()
	c.ctx = ctx
	for _, f := range fx {
		c.execute(f)
	}
}

// Post hands an event over from another goroutine. It is applied at the start of the next Tick.
func (c *Controller) Post(ev Event) {
	c.events.Enqueue(ev)
}

// SetExternalProductNumber stores the product number used by the external number policy.
// It is safe for concurrent use.
func (c *Controller) SetExternalProductNumber(n uint32) {
	c.external.Store(n)
}

// Context returns the current controller state.
func (c *Controller) Context() Context {
	return c.ctx
}

// Selections returns the LWM seam selection table of the running cycle.
func (c *Controller) Selections() recipe.SelectionTable {
	return c.selections
}

// SeamCount returns the number of seams of a seam-series of the running product, 0 if unknown.
func (c *Controller) SeamCount(series int) int {
	if c.product == nil {
		return 0
	}

	return c.product.SeamCount(series)
}

// Tick runs one controller step: posted events first, then the sampled triggers, then the
// tick-counted timeouts.
func (c *Controller) Tick() {
	c.events.Drain(c.Apply)

	cycle := c.cycleEdge.Update(c.signals.Bool(fieldbus.SigCycleStart))
	series := c.seriesEdge.Update(c.signals.Bool(fieldbus.SigSeamSeriesStart))
	seam := NoEdge
	if !c.params.Scanmaster {
		seam = c.seamEdge.Update(c.signals.Bool(fieldbus.SigSeamStart))
	}

	// a fault closed the held seam
	if c.holding && !c.ctx.SeamActive {
		c.holding = false
		c.deferred = nil
	}
	// an opening edge ends a hold
	if c.holding && (cycle == RisingEdge || series == RisingEdge || seam == RisingEdge) {
		c.logger.Warn("seam hold ended by a new start", "seam", c.ctx.Seam)
		c.ReleaseSeam()
	}

	// closing edges innermost first, then the fault reset, then opening edges outermost first
	if seam == FallingEdge {
		c.stopSeam()
	}
	if series == FallingEdge {
		c.closing(SeamSeriesStopEvent{})
	}
	if cycle == FallingEdge {
		c.closing(CycleStopEvent{})
	}

	if c.quitEdge.Update(c.signals.Bool(fieldbus.SigQuitSystemFault)) == RisingEdge {
		c.Apply(QuitFaultEvent{})
	}

	if cycle == RisingEdge {
		c.Apply(CycleStartEvent{
			ProductType:   c.signals.Field(fieldbus.SigProductType),
			ProductNumber: c.signals.Field(fieldbus.SigProductNumber),
			External:      c.external.Load(),
			Serial:        c.serial.Next(),
			Info:          c.signals.String(fieldbus.SigExtendedProductInfo),
		})
	}
	if series == RisingEdge {
		c.Apply(SeamSeriesStartEvent{Number: int(c.signals.Field(fieldbus.SigSeamSeriesNumber))})
	}
	if seam == RisingEdge {
		c.Apply(SeamStartEvent{Number: int(c.signals.Field(fieldbus.SigSeamNumber))})
	}

	if c.calibrationEdge.Update(c.signals.Bool(fieldbus.SigCalibrationStart)) == RisingEdge {
		c.Apply(CalibrationStartEvent{Type: c.signals.Field(fieldbus.SigCalibrationType)})
	}
	if c.homeEdge.Update(c.signals.Bool(fieldbus.SigHomeAxis)) == RisingEdge {
		c.Apply(HomeAxisEvent{})
	}

	c.Apply(TickEvent{})
}

func (c *Controller) stopSeam() {
	if c.holder != nil && c.ctx.SeamActive && !c.holding && c.holder.HoldSeam() {
		c.holding = true
		c.logger.Debug("seam held for its verdict", "seam", c.ctx.Seam)

		return
	}
	c.closing(SeamStopEvent{})
}

func (c *Controller) closing(ev Event) {
	if c.holding {
		c.deferred = append(c.deferred, ev)
		return
	}
	c.Apply(ev)
}

// Apply feeds one event through Transition and executes the effects. It must only be called
// from the cyclic task.
func (c *Controller) Apply(ev Event) {
	next, fx := Transition(c.ctx, ev, c.params)
	c.ctx = next
	for _, f := range fx {
		c.execute(f)
	}
}

func (c *Controller) execute(fx Effect) {
	switch fx := fx.(type) {
	case SetBool:
		c.boolSender(fx.Signal).Send(fx.Value)

	case SetField:
		c.fieldSender(fx.Signal).Send(fx.Value)

	case LoadSelections:
		c.loadSelections(fx.ProductType)

	case StartCycle:
		c.logger.Info("cycle started", "productType", fx.Product.Type, "productNumber", fx.Product.Number)
		c.process.CycleStarted(fx.Product)

	case StopCycle:
		c.logger.Info("cycle stopped", "productType", fx.Product.Type, "productNumber", fx.Product.Number,
			"inspectionOK", fx.InspectionOK, "errors", fx.Errors, "forced", fx.Forced)
		c.process.CycleStopped(fx)
		c.product = nil
		c.selections = recipe.SelectionTable{}

	case StartSeamSeries:
		c.logger.Debug("seam-series started", "seamSeries", fx.Number)
		c.process.SeamSeriesStarted(fx.Number)

	case StopSeamSeries:
		c.logger.Debug("seam-series stopped", "seamSeries", fx.Number, "errors", fx.Errors, "forced", fx.Forced)
		c.process.SeamSeriesStopped(fx)

	case StartSeam:
		c.logger.Debug("seam started", "seamSeries", fx.SeamSeries, "seam", fx.Number)
		c.process.SeamStarted(fx.SeamSeries, fx.Number)

	case StopSeam:
		c.logger.Debug("seam stopped", "seamSeries", fx.SeamSeries, "seam", fx.Number, "results", fx.Results, "errors", fx.Errors)
		c.process.SeamStopped(fx)

	case Calibrate:
		c.logger.Info("calibration started", "calibrationType", fx.Type)
		c.process.Calibrate(fx.Type)

	case HomeAxis:
		c.logger.Info("homing axis")
		c.process.HomeAxis()

	case Warning:
		c.logger.Warn(fx.Msg, "state", c.ctx.State())

	case Violation:
		c.logger.Warn("command dropped", "reason", fx.Msg, "state", c.ctx.State())

	case Fault:
		c.logger.Error("system fault", "reason", fx.Reason)
	}

	for _, o := range c.observers {
		o(c.ctx, fx)
	}
}

// loadSelections substitutes an empty table, which disables LWM inspection, when the recipe
// cannot be resolved.
func (c *Controller) loadSelections(productType uint32) {
	c.product = nil
	c.selections = recipe.SelectionTable{}
	if c.recipes == nil {
		return
	}

	p, err := c.recipes.Product(productType)
	if err != nil {
		c.logger.Error("configuration error", "productType", productType, "error", err)
		return
	}
	c.product = p
	c.selections = p.Selections()
}

func (c *Controller) boolSender(sig fieldbus.Signal) fieldbus.BoolSender {
	s, ok := c.bools[sig]
	if !ok {
		s = c.signals.BoolSender(sig)
		c.bools[sig] = s
	}

	return s
}

func (c *Controller) fieldSender(sig fieldbus.Signal) fieldbus.FieldSender {
	s, ok := c.fields[sig]
	if !ok {
		s = c.signals.FieldSender(sig)
		c.fields[sig] = s
	}

	return s
}
