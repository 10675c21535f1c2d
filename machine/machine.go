package machine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/arloliu/go-seamctl/archive"
	"github.com/arloliu/go-seamctl/config"
	"github.com/arloliu/go-seamctl/cycle"
	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/internal/task"
	"github.com/arloliu/go-seamctl/logger"
	"github.com/arloliu/go-seamctl/lwm"
	"github.com/arloliu/go-seamctl/recipe"
	"github.com/arloliu/go-seamctl/s6k"
	"github.com/arloliu/go-seamctl/scanmaster"
)

var errContinuousMode = errors.New("continuous mode and the S6K pipeline must be enabled together")

// LWMClient is the LWM client the machine drives. *lwm.Client implements it.
type LWMClient interface {
	Open() error
	Close() error
	Connected() bool
	DrainEvents(fn func(lwm.Event)) int
	RequestSelection(sel lwm.Selection) error
	AbandonSelection()
	RequestStop(ackRequested bool) error
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger. The default is logger.GetLogger().
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.base = l
		}
	}
}

// WithProcess sets the processing collaborator. Without one every request is acknowledged at
// once.
func WithProcess(p cycle.Process) Option {
	return func(m *Machine) { m.process = p }
}

// WithSensorSink sets the receiver of the sampler. Without one only threshold crossings are
// logged.
func WithSensorSink(s SensorSink) Option {
	return func(m *Machine) { m.sink = s }
}

// WithTransport replaces the transport named by the configuration.
func WithTransport(tr fieldbus.Transport) Option {
	return func(m *Machine) { m.transport = tr }
}

// WithRecipes replaces the recipe directory of the configuration.
func WithRecipes(r cycle.Recipes) Option {
	return func(m *Machine) { m.recipes = r }
}

// WithLWM replaces the LWM client built from the [lwm] section, even when it is disabled there.
func WithLWM(c LWMClient) Option {
	return func(m *Machine) { m.client = c }
}

// Machine is the running control core.
type Machine struct {
	base   logger.Logger
	logger logger.Logger
	store  *config.Store
	snap   *config.Snapshot

	transport fieldbus.Transport
	recipes   cycle.Recipes
	process   cycle.Process
	sink      SensorSink
	client    LWMClient

	bus      *fieldbus.Bus
	ctrl     *cycle.Controller
	seq      *scanmaster.Sequencer
	pipe     *s6k.Pipeline
	insp     *inspector
	sampler  *Sampler
	archive  *archive.Store
	recorder *archive.Recorder

	tasks         *task.Manager
	busOpen       bool
	lwmOpen       bool
	flushFailures int
}

// New builds the machine described by the current snapshot of store. Nothing is started until
// Start or Run.
func New(ctx context.Context, store *config.Store, opts ...Option) (*Machine, error) {
	m := &Machine{
		base:  logger.GetLogger(),
		store: store,
		snap:  store.Snapshot(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.base.With("component", "machine")
	snap := m.snap

	if m.transport == nil {
		tr, err := NewTransport(snap.Fieldbus, m.base)
		if err != nil {
			return nil, err
		}
		m.transport = tr
	}
	m.bus = fieldbus.NewBus(snap.Fieldbus.Devices, snap.Fieldbus.Descriptors, m.transport, m.base)

	if m.recipes == nil {
		book, err := recipe.LoadDir(snap.Machine.RecipeDir)
		if err != nil {
			m.logger.Error("configuration error", "section", "machine", "key", "recipe_dir", "error", err)
		} else {
			m.recipes = book
		}
	}

	if m.client == nil && snap.LWM.Enabled {
		client, err := NewLWMClient(ctx, snap.LWM, m.base)
		if err != nil {
			return nil, err
		}
		m.client = client
	}

	loop := &loopbackProcess{logger: m.logger}
	if m.process == nil {
		m.process = loop
	}
	m.ctrl = cycle.New(m.bus, m.process, cycle.Params{
		ProductNumber:   snap.Machine.ProductNumber,
		CycleAckTimeout: snap.Ticks(snap.Machine.CycleAckTimeout),
		Scanmaster:      snap.Scanmaster.Application,
	}, cycle.WithLogger(m.base), cycle.WithRecipes(m.recipes))
	loop.ctrl = m.ctrl

	if snap.Scanmaster.Application {
		sm := snap.Scanmaster
		m.seq = scanmaster.New(m.ctrl, m.bus, m.client, scanmaster.Params{
			ThreeStep:            sm.ThreeStep,
			LWM:                  sm.LWM,
			Settle:               snap.Ticks(sm.Settle),
			SelectionTimeout:     snap.Ticks(sm.SelectionTimeout),
			ImageStartTimeout:    snap.Ticks(sm.ImageStartTimeout),
			ProcessingEndTimeout: snap.Ticks(sm.ProcessingEndTimeout),
			ResultTimeout:        snap.Ticks(sm.ResultTimeout),
		}, m.base)
		m.ctrl.AddObserver(m.seq.Observe)
		loop.seq = m.seq
	}

	switch {
	case snap.S6K.Enabled && snap.Machine.ContinuousMode:
		c := snap.S6K
		m.pipe = s6k.New(m.ctrl, m.bus, m.client, s6k.Params{
			ImageCount:     c.ImageCount,
			InputRing:      c.InputRing,
			OutputRing:     c.OutputRing,
			AckRetries:     c.AckRetries,
			QualityDialog:  c.QualityDialog,
			QualityTimeout: snap.Ticks(c.QualityTimeout),
			LWM:            true,
			ResultTimeout:  snap.Ticks(snap.LWM.ResultTimeout),
		}, m.base)
	case snap.S6K.Enabled != snap.Machine.ContinuousMode:
		m.logger.Error("configuration error", "section", "machine", "key", "continuous_mode", "error", errContinuousMode)
	}

	if m.client != nil && m.seq == nil && m.pipe == nil {
		m.insp = newInspector(m.ctrl, m.client, snap.Ticks(snap.LWM.ResultTimeout), m.base)
		m.ctrl.AddObserver(m.insp.observe)
		m.ctrl.SetSeamHolder(m.insp)
	}

	if snap.Archive.Enabled {
		st, err := archive.Open(snap.Archive.Path)
		if err != nil {
			m.logger.Error("archive disabled", "path", snap.Archive.Path, "error", err)
		} else {
			m.archive = st
			m.recorder = archive.NewRecorder(st, m.base)
			m.ctrl.AddObserver(m.recorder.Observe)
		}
	}

	if snap.Sampler.Enabled {
		sink := m.sink
		if sink == nil {
			sink = crossingLogger(m.logger)
		}
		m.sampler = NewSampler(m.bus, store, sink)
	}

	return m, nil
}

// NewLWMClient creates a closed LWM client from the [lwm] section.
func NewLWMClient(ctx context.Context, c config.LWM, l logger.Logger) (*lwm.Client, error) {
	cfg, err := lwm.NewConfig(c.Host, c.Port,
		lwm.WithByteOrder(c.ByteOrder),
		lwm.WithWatchdogInterval(c.WatchdogInterval),
		lwm.WithWatchdogTimeout(c.WatchdogTimeout),
		lwm.WithRetryDelay(c.RetryDelay),
		lwm.WithReadTimeout(c.ReadTimeout),
		lwm.WithFailureEscalation(c.FailureEscalation),
		lwm.WithLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure LWM client: %w", err)
	}

	return lwm.NewClient(ctx, cfg)
}

func crossingLogger(l logger.Logger) SensorSink {
	return SensorSinkFunc(func(s Sample) {
		if s.Crossing != cycle.NoEdge {
			l.Info("analog threshold crossed", "edge", s.Crossing, "value", s.Analog[0])
		}
	})
}

// Bus returns the fieldbus.
func (m *Machine) Bus() *fieldbus.Bus { return m.bus }

// Controller returns the cycle controller.
func (m *Machine) Controller() *cycle.Controller { return m.ctrl }

// Sequencer returns the SCANMASTER sequencer, nil when the application is disabled.
func (m *Machine) Sequencer() *scanmaster.Sequencer { return m.seq }

// Pipeline returns the S6K result pipeline, nil when continuous mode is disabled.
func (m *Machine) Pipeline() *s6k.Pipeline { return m.pipe }

// Sampler returns the sensor sampler, nil when it is disabled.
func (m *Machine) Sampler() *Sampler { return m.sampler }

// Recorder returns the archive recorder, nil when archiving is disabled or failed to open.
func (m *Machine) Recorder() *archive.Recorder { return m.recorder }

// SetAnalogThreshold changes the analog trigger threshold of the sampler and persists it.
func (m *Machine) SetAnalogThreshold(v uint32) error {
	if err := m.store.SetTunable(config.TunableAnalogThreshold, strconv.FormatUint(uint64(v), 10)); err != nil {
		return err
	}
	if err := m.store.Save(); err != nil && !errors.Is(err, config.ErrNoPath) {
		return fmt.Errorf("failed to persist analog threshold: %w", err)
	}

	return nil
}

// Open opens the fieldbus and the LWM client and publishes the initial outputs. It is the first
// half of Start and lets callers drive Tick themselves.
func (m *Machine) Open(ctx context.Context) error {
	if err := m.bus.Open(ctx); err != nil {
		return fmt.Errorf("failed to open fieldbus: %w", err)
	}
	m.busOpen = true

	if m.client != nil {
		if err := m.client.Open(); err != nil {
			return fmt.Errorf("failed to open LWM client: %w", err)
		}
		m.lwmOpen = true
	}
	m.ctrl.Start()

	return nil
}

// Start opens the machine and starts the cyclic, sampler and archive tasks.
func (m *Machine) Start(ctx context.Context) error {
	if err := m.Open(ctx); err != nil {
		m.Stop()
		return err
	}

	m.tasks = task.NewManager(ctx, m.logger)
	if err := m.startTasks(); err != nil {
		m.Stop()
		return err
	}
	m.logger.Info("machine started", "tickPeriod", m.snap.Machine.TickPeriod,
		"scanmaster", m.seq != nil, "s6k", m.pipe != nil, "lwm", m.client != nil)

	return nil
}

func (m *Machine) startTasks() error {
	if m.recorder != nil {
		if err := m.recorder.Start(m.tasks); err != nil {
			return err
		}
	}

	if _, err := m.tasks.StartInterval("cyclic", m.Tick, m.snap.Machine.TickPeriod, false); err != nil {
		return err
	}

	if m.sampler != nil {
		prio := m.snap.Sampler.Priority
		setup := func() { raisePriority(prio, m.logger) }
		if _, err := m.tasks.StartPinnedInterval("sampler", setup, m.sampler.Sample, m.snap.Sampler.Period); err != nil {
			return err
		}
	}

	return nil
}

// Run starts the machine and blocks until ctx is canceled, then stops it.
func (m *Machine) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()

	return nil
}

// Stop stops the tasks, signs off from the LWM device, drops the system ready output and closes
// the fieldbus and the archive.
func (m *Machine) Stop() {
	if m.tasks != nil {
		m.tasks.Stop()
		m.tasks.Wait()
		m.tasks = nil
	}

	if m.lwmOpen {
		if err := m.client.Close(); err != nil {
			m.logger.Warn("failed to close LWM client", "error", err)
		}
		m.lwmOpen = false
	}

	if m.busOpen {
		m.bus.BoolSender(fieldbus.SigSystemReady).Send(false)
		if err := m.bus.Flush(); err != nil {
			m.logger.Warn("final output flush failed", "error", err)
		}
		if err := m.bus.Close(); err != nil {
			m.logger.Warn("failed to close fieldbus", "error", err)
		}
		m.busOpen = false
	}

	if m.archive != nil {
		if err := m.archive.Close(); err != nil {
			m.logger.Warn("failed to close archive", "error", err)
		}
		m.archive = nil
	}
	m.logger.Info("machine stopped")
}

// Tick runs one cyclic step: LWM events, controller, active cycle driver, output flush.
// It always returns true so it can run as a task.Func.
func (m *Machine) Tick() bool {
	if m.client != nil {
		m.client.DrainEvents(m.routeLWM)
	}

	m.ctrl.Tick()
	if m.insp != nil {
		m.insp.tick()
	}
	if m.seq != nil {
		m.seq.Tick()
	}
	if m.pipe != nil {
		m.pipe.Tick()
	}

	if err := m.bus.Flush(); err != nil {
		m.flushFailed(err)
	} else {
		m.flushFailures = 0
	}

	return true
}

func (m *Machine) routeLWM(ev lwm.Event) {
	switch ev.Kind {
	case lwm.EventConnected:
		m.logger.Info("LWM device connected")
	case lwm.EventDisconnected:
		m.logger.Warn("LWM device disconnected", "state", m.ctrl.Context().State())
	}

	switch {
	case m.seq != nil:
		m.seq.HandleLWM(ev)
	case m.pipe != nil:
		m.pipe.HandleLWM(ev)
	case m.insp != nil:
		m.insp.handle(ev)
	}
}

// flushFailed logs the first failure of a run at warn level and every Nth at error level.
func (m *Machine) flushFailed(err error) {
	m.flushFailures++

	every := m.snap.Fieldbus.FailureEscalation
	switch {
	case m.flushFailures == 1:
		m.logger.Warn("output flush failed", "error", err)
	case every > 0 && m.flushFailures%every == 0:
		m.logger.Error("output flush keeps failing", "failures", m.flushFailures, "error", err)
	}
}
