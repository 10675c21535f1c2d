package s6k

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-seamctl/cycle"
	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/internal/queue"
	"github.com/arloliu/go-seamctl/logger"
	"github.com/arloliu/go-seamctl/lwm"
	"github.com/arloliu/go-seamctl/recipe"
)

// Seam error categories. Category 1 is a not-OK LWM verdict, category 2 a seam whose inspection
// did not produce a usable verdict.
const (
	Category1 uint32 = 1 << 0
	Category2 uint32 = 1 << 1
)

const maxQualityReports = 16

// Cycle is the part of the cycle controller the pipeline drives. *cycle.Controller implements it.
type Cycle interface {
	Context() cycle.Context
	Selections() recipe.SelectionTable
	Apply(ev cycle.Event)
}

// Signals is the fieldbus view of the pipeline. *fieldbus.Bus implements it.
type Signals interface {
	Bool(sig fieldbus.Signal) bool
	Field(sig fieldbus.Signal) uint32
	Descriptor(sig fieldbus.Signal) (fieldbus.Descriptor, bool)
	BoolSender(sig fieldbus.Signal) fieldbus.BoolSender
	FieldSender(sig fieldbus.Signal) fieldbus.FieldSender
	BytesSender(sig fieldbus.Signal) fieldbus.BytesSender
}

// LWM is the part of the LWM client the pipeline uses. *lwm.Client implements it.
type LWM interface {
	RequestSelection(sel lwm.Selection) error
	AbandonSelection()
	RequestStop(ackRequested bool) error
}

// Params are the pipeline settings. Timeouts are in ticks.
type Params struct {
	// ImageCount is the number of images per result block.
	ImageCount int
	InputRing  int
	OutputRing int
	// AckRetries is the number of ticks each half of the result block handshake may take.
	AckRetries     int
	QualityDialog  bool
	QualityTimeout int
	// LWM enables per-seam program selection and result attribution.
	LWM bool
	// ResultTimeout is the number of ticks an identity change waits for the verdict of a
	// selected seam after the measurement was stopped. Zero closes the seam at once.
	ResultTimeout int
}

type seamState struct {
	open       bool
	inspect    bool
	program    int32
	requested  bool
	selected   bool
	attributed bool

	// stopped is set once the measurement was stopped for the verdict; expired ends the wait.
	stopped bool
	expired bool
	elapsed int
}

type qualityReport struct {
	id   Identity
	cat1 uint32
	cat2 uint32
}

type outputs struct {
	batch        fieldbus.FieldSender
	seamSeries   fieldbus.FieldSender
	seam         fieldbus.FieldSender
	block        fieldbus.BytesSender
	index        fieldbus.FieldSender
	valid        fieldbus.BoolSender
	cat1         fieldbus.FieldSender
	cat2         fieldbus.FieldSender
	qualityValid fieldbus.BoolSender
}

// Pipeline drives the cycle controller from the S6K identity fields and transmits result blocks
// and quality reports. Tick, HandleLWM and the accessors run on the cyclic task; only
// PostMeasurement may be called from other goroutines.
type Pipeline struct {
	logger  logger.Logger
	params  Params
	cycle   Cycle
	signals Signals
	lwm     LWM
	out     outputs
	metrics *Metrics

	current Identity
	seam    seamState
	cat1    uint32
	cat2    uint32

	measurements *queue.Queue[Measurement]
	input        *Ring[*Block]
	output       *Ring[*Block]
	transfer     Handshake
	index        uint32

	quality Handshake
	reports *Ring[qualityReport]
}

// New creates a pipeline. client may be nil when no LWM device is configured; Params.LWM is then
// ignored.
func New(c Cycle, signals Signals, client LWM, p Params, l logger.Logger) *Pipeline {
	if l == nil {
		l = logger.GetLogger()
	}
	l = l.With("component", "s6k")
	if client == nil {
		p.LWM = false
	}
	p = fitImageCount(p, signals, l)

	return &Pipeline{
		logger:  l,
		params:  p,
		cycle:   c,
		signals: signals,
		lwm:     client,
		metrics: &Metrics{},
		out: outputs{
			batch:        signals.FieldSender(fieldbus.SigS6KBatchMirror),
			seamSeries:   signals.FieldSender(fieldbus.SigS6KSeamSeriesMirror),
			seam:         signals.FieldSender(fieldbus.SigS6KSeamMirror),
			block:        signals.BytesSender(fieldbus.SigS6KResultBlock),
			index:        signals.FieldSender(fieldbus.SigS6KResultIndex),
			valid:        signals.BoolSender(fieldbus.SigS6KResultValid),
			cat1:         signals.FieldSender(fieldbus.SigS6KSeamErrorCat1),
			cat2:         signals.FieldSender(fieldbus.SigS6KSeamErrorCat2),
			qualityValid: signals.BoolSender(fieldbus.SigS6KQualityValid),
		},
		measurements: queue.New[Measurement](),
		input:        NewRing[*Block](p.InputRing),
		output:       NewRing[*Block](p.OutputRing),
		reports:      NewRing[qualityReport](maxQualityReports),
	}
}

// fitImageCount limits the image count to what the result block output can carry.
func fitImageCount(p Params, signals Signals, l logger.Logger) Params {
	if p.ImageCount < 1 {
		l.Error("configuration error", "section", "s6k", "key", "image_count",
			"error", fmt.Errorf("image count %d below 1", p.ImageCount))
		p.ImageCount = 1
	}

	d, ok := signals.Descriptor(fieldbus.SigS6KResultBlock)
	if !ok {
		return p
	}
	if capacity := int(d.Length) / 8 / PairSize; p.ImageCount > capacity {
		l.Error("configuration error", "section", "s6k", "key", "image_count",
			"error", fmt.Errorf("%d images do not fit the %d byte result block, using %d", p.ImageCount, d.Length/8, capacity))
		p.ImageCount = max(capacity, 1)
	}

	return p
}

// Metrics returns the pipeline counters.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Identity returns the accepted identity triple.
func (p *Pipeline) Identity() Identity {
	return p.current
}

// Backlog returns the number of complete blocks waiting for transmission, including the one
// being transmitted.
func (p *Pipeline) Backlog() int {
	return p.output.Len()
}

// PostMeasurement hands a measurement pair over from the image processing goroutine.
func (p *Pipeline) PostMeasurement(m Measurement) {
	p.measurements.Enqueue(m)
}

// Tick runs one cyclic task step: collect measurements, follow the identity fields, then
// advance the quality dialog and the block transmission.
func (p *Pipeline) Tick() {
	p.measurements.Drain(p.collect)
	if !p.holding() {
		p.follow(p.readIdentity())
	}
	p.stepQuality()
	p.stepTransfer()
}

func (p *Pipeline) readIdentity() Identity {
	return Identity{
		Batch:      p.signals.Field(fieldbus.SigS6KBatchID),
		SeamSeries: int(p.signals.Field(fieldbus.SigS6KSeamSeries)),
		Seam:       int(p.signals.Field(fieldbus.SigS6KSeam)),
	}
}

// follow opens and closes cycle, seam-series and seam for an identity change. Closing runs
// innermost first, opening outermost first.
func (p *Pipeline) follow(next Identity) {
	prev := p.current
	if next == prev || p.stopForVerdict() {
		return
	}

	switch {
	case next.Batch != prev.Batch:
		p.closeSeam()
		p.closeSeries()
		p.closeCycle()
		p.current = next
		p.openCycle()
		p.openSeries()
		p.openSeam()
	case next.SeamSeries != prev.SeamSeries:
		p.closeSeam()
		p.closeSeries()
		p.current = next
		p.openSeries()
		p.openSeam()
	default:
		p.closeSeam()
		p.current = next
		p.openSeam()
	}

	p.out.batch.Send(next.Batch)
	p.out.seamSeries.Send(uint32(next.SeamSeries))
	p.out.seam.Send(uint32(next.Seam))
	p.logger.Debug("identity taken over", "identity", next)
}

func (p *Pipeline) openCycle() {
	id := p.current
	if id.Batch == 0 {
		return
	}

	p.cycle.Apply(cycle.CycleStartEvent{
		ProductType:   p.signals.Field(fieldbus.SigProductType),
		ProductNumber: id.Batch,
		External:      id.Batch,
		Serial:        id.Batch,
	})
}

func (p *Pipeline) openSeries() {
	id := p.current
	if id.Batch == 0 || id.SeamSeries == 0 || !p.cycle.Context().CycleActive {
		return
	}

	p.cat1, p.cat2 = 0, 0
	p.cycle.Apply(cycle.SeamSeriesStartEvent{Number: id.SeamSeries})
}

func (p *Pipeline) openSeam() {
	id := p.current
	if id.Batch == 0 || id.Seam == 0 {
		return
	}

	p.cycle.Apply(cycle.SeamStartEvent{Number: id.Seam})
	if !p.cycle.Context().SeamActive {
		return
	}

	p.seam = seamState{open: true}
	entry, ok := p.cycle.Selections().Lookup(id.SeamSeries, id.Seam)
	if !p.params.LWM || !ok || !entry.Active {
		return
	}
	p.seam.inspect = true
	p.seam.program = entry.Program
	p.requestSelection()
}

func (p *Pipeline) requestSelection() {
	id := p.current
	sel := lwm.Selection{
		AckRequested:    true,
		SystemActivated: true,
		Program:         p.seam.program,
		SeamSeries:      int32(id.SeamSeries),
		Seam:            int32(id.Seam),
	}

	err := p.lwm.RequestSelection(sel)
	switch {
	case errors.Is(err, lwm.ErrSelectionPending):
		p.logger.Warn("command dropped", "reason", "LWM selection while another selection is pending",
			"identity", id, "program", sel.Program)
	case err != nil:
		p.logger.Warn("LWM selection not sent", "identity", id, "program", sel.Program, "error", err)
	default:
		p.seam.requested = true
	}
}

// stopForVerdict stops the LWM measurement of a selected seam that has no verdict yet. The
// identity change is then deferred until the verdict arrives or ResultTimeout ticks passed.
func (p *Pipeline) stopForVerdict() bool {
	s := &p.seam
	if !s.open || !s.selected || s.attributed || s.stopped || p.params.ResultTimeout <= 0 {
		return false
	}

	if err := p.lwm.RequestStop(false); err != nil {
		p.logger.Warn("LWM stop not sent", "identity", p.current, "program", s.program, "error", err)
		return false
	}
	s.stopped = true
	s.elapsed = 0

	return true
}

// holding reports whether the stopped seam still waits for its verdict.
func (p *Pipeline) holding() bool {
	s := &p.seam
	if !s.stopped || s.attributed || s.expired {
		return false
	}
	if s.elapsed < p.params.ResultTimeout {
		s.elapsed++
		return true
	}

	p.logger.Warn("LWM seam result missing", "identity", p.current, "program", s.program, "ticks", p.params.ResultTimeout)
	s.expired = true

	return false
}

func (p *Pipeline) closeSeam() {
	if !p.seam.open {
		return
	}

	if p.seam.inspect && !p.seam.attributed {
		p.logger.Warn("seam closed without LWM result", "identity", p.current, "program", p.seam.program)
		p.report(Category2)
	}
	if p.seam.requested && !p.seam.selected {
		p.lwm.AbandonSelection()
	}
	if p.cycle.Context().SeamActive {
		p.cycle.Apply(cycle.SeamStopEvent{})
	}
	p.seam = seamState{}
	p.requestQuality()
}

func (p *Pipeline) closeSeries() {
	if p.cycle.Context().SeriesActive {
		p.cycle.Apply(cycle.SeamSeriesStopEvent{})
	}
}

func (p *Pipeline) closeCycle() {
	if p.cycle.Context().CycleActive {
		p.cycle.Apply(cycle.CycleStopEvent{})
	}
}

// report hands a seam verdict to the cycle controller and records its category.
func (p *Pipeline) report(mask uint32) {
	if p.cycle.Context().SeamActive {
		p.cycle.Apply(cycle.ResultEvent{Mask: mask})
	}

	bit := seamBit(p.current.Seam)
	if mask&Category1 != 0 {
		p.cat1 |= bit
	}
	if mask&Category2 != 0 {
		p.cat2 |= bit
	}
}

func seamBit(seam int) uint32 {
	if seam < 1 || seam > 32 {
		return 0
	}

	return 1 << (seam - 1)
}

// HandleLWM consumes an LWM client event.
func (p *Pipeline) HandleLWM(ev lwm.Event) {
	switch ev.Kind {
	case lwm.EventDisconnected:
		if p.seam.requested && !p.seam.selected {
			p.logger.Warn("LWM connection lost before the selection was acknowledged", "identity", p.current)
			p.seam.requested = false
		}
		if p.seam.stopped && !p.seam.attributed && !p.seam.expired {
			p.logger.Warn("LWM connection lost while waiting for the seam result", "identity", p.current)
			p.seam.expired = true
		}
		return
	case lwm.EventConnected:
		return
	}

	switch t := ev.Telegram.(type) {
	case *lwm.SelectionAck:
		if !p.seam.requested || p.seam.selected {
			return
		}
		if t.Code != 0 {
			p.logger.Warn("LWM program selection refused", "identity", p.current, "program", p.seam.program, "code", t.Code)
			p.seam.requested = false

			return
		}
		p.seam.selected = true
	case *lwm.ResultRanges:
		p.attribute(t)
	case *lwm.ResultValuesRanges:
		p.attribute(&t.ResultRanges)
	}
}

// attribute accepts an LWM result only for the open seam whose selection was acknowledged with
// the same program.
func (p *Pipeline) attribute(r *lwm.ResultRanges) {
	if !p.seam.open || !p.seam.selected || p.seam.attributed || r.Program != p.seam.program {
		p.metrics.incResultRejectCount()
		p.logger.Warn("LWM result not attributed", "identity", p.current, "program", r.Program,
			"selected", p.seam.program, "acknowledged", p.seam.selected)

		return
	}
	p.seam.attributed = true

	switch {
	case r.OK():
		p.report(0)
	case r.Overall == lwm.ResultNotOK:
		p.report(Category1)
	default:
		p.report(Category2)
	}
}

func (p *Pipeline) requestQuality() {
	if !p.params.QualityDialog {
		p.out.cat1.Send(p.cat1)
		p.out.cat2.Send(p.cat2)

		return
	}

	r := qualityReport{id: p.current, cat1: p.cat1, cat2: p.cat2}
	if !p.reports.Push(r) {
		p.logger.Warn("quality report dropped, dialog backlog full", "identity", r.id)
	}
}

func (p *Pipeline) stepQuality() {
	if !p.quality.Busy() {
		r, ok := p.reports.Peek()
		if !ok {
			return
		}
		p.out.cat1.Send(r.cat1)
		p.out.cat2.Send(r.cat2)
		p.quality = p.quality.Begin()
		p.out.qualityValid.Send(true)

		return
	}

	var outcome Outcome
	p.quality, outcome = p.quality.Step(p.signals.Bool(fieldbus.SigS6KQualityAck), p.params.QualityTimeout)
	p.out.qualityValid.Send(p.quality.Valid())

	switch outcome {
	case Acknowledged:
		p.reports.Pop()
		p.metrics.incQualitySendCount()
	case Aborted:
		r, _ := p.reports.Pop()
		p.metrics.incQualityAbortCount()
		p.logger.Error("quality report not acknowledged", "identity", r.id, "ticks", p.params.QualityTimeout)
	}
}

func (p *Pipeline) stepTransfer() {
	if !p.transfer.Busy() {
		b, ok := p.output.Peek()
		if !ok {
			return
		}
		p.index = p.index%255 + 1
		p.out.block.Send(b.Encode())
		p.out.index.Send(p.index)
		p.transfer = p.transfer.Begin()
		p.out.valid.Send(true)

		return
	}

	var outcome Outcome
	p.transfer, outcome = p.transfer.Step(p.signals.Bool(fieldbus.SigS6KResultAck), p.params.AckRetries)
	p.out.valid.Send(p.transfer.Valid())

	switch outcome {
	case Acknowledged:
		b, _ := p.output.Pop()
		p.metrics.incBlockSendCount()
		p.logger.Debug("result block acknowledged", "identity", b.ID, "index", p.index)
	case Aborted:
		b, _ := p.output.Pop()
		p.metrics.incBlockAbortCount()
		p.logger.Error("result block acknowledge stalled, transmission aborted",
			"identity", b.ID, "index", p.index, "retries", p.params.AckRetries)
	}
}

// collect stores a measurement in the block of its identity. A complete block moves to the
// output ring; incomplete blocks ahead of it are dropped.
func (p *Pipeline) collect(m Measurement) {
	if m.ID.Batch == 0 || m.ID.Seam == 0 {
		p.metrics.incMeasurementDropCount()
		p.logger.Warn("measurement without identity dropped", "identity", m.ID, "image", m.Image)

		return
	}

	idx := -1
	for i := 0; i < p.input.Len(); i++ {
		if p.input.At(i).ID == m.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		if p.input.Full() {
			b, _ := p.input.Pop()
			p.dropBlock(b, "input ring full")
		}
		p.input.Push(newBlock(m.ID, p.params.ImageCount))
		idx = p.input.Len() - 1
	}

	b := p.input.At(idx)
	if !b.set(m.Image, m.Pair) {
		p.metrics.incMeasurementDropCount()
		p.logger.Warn("measurement dropped", "identity", m.ID, "image", m.Image, "images", p.params.ImageCount)

		return
	}
	if !b.Complete() {
		return
	}

	for i := 0; i < idx; i++ {
		old, _ := p.input.Pop()
		p.dropBlock(old, "overtaken by a later seam")
	}
	p.input.Pop()
	if !p.output.Push(b) {
		p.dropBlock(b, "output ring full")
	}
}

func (p *Pipeline) dropBlock(b *Block, reason string) {
	p.metrics.incBlockDropCount()
	p.logger.Error("result block dropped", "identity", b.ID, "images", b.Count(), "reason", reason)
}
