// Package modbus implements the fieldbus transport over Modbus/TCP.
//
// Input registers of every device are polled with "read input registers"; output images are
// written with "write multiple registers". Register images are the raw Modbus register bytes,
// two bytes per register, so odd sized images are padded with one zero byte on the wire.
package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"

	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/internal/task"
	"github.com/arloliu/go-seamctl/logger"
)

// ErrRegisterSize is returned when a device image exceeds the Modbus request limits.
var ErrRegisterSize = errors.New("modbus: register image too large")

const (
	maxReadRegisters  = 125
	maxWriteRegisters = 123
)

// Config configures the Modbus/TCP transport.
type Config struct {
	Address      string
	Timeout      time.Duration
	PollInterval time.Duration
	// FailureEscalation logs every Nth consecutive failure of a device at error level.
	FailureEscalation int
}

// RegisterClient is the subset of modbus.Client the transport uses.
type RegisterClient interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// ClientFactory creates a client for one slave unit and returns it with its close function.
type ClientFactory func(address string, unit uint8, timeout time.Duration) (RegisterClient, func() error)

// DefaultClientFactory dials address through a goburrow TCP client handler bound to unit.
func DefaultClientFactory(address string, unit uint8, timeout time.Duration) (RegisterClient, func() error) {
	h := modbus.NewTCPClientHandler(address)
	h.SlaveId = unit
	h.Timeout = timeout

	return modbus.NewClient(h), h.Close
}

type unit struct {
	client   RegisterClient
	close    func() error
	failures atomic.Int64
}

// Transport is the Modbus/TCP fieldbus transport.
type Transport struct {
	cfg     Config
	factory ClientFactory
	logger  logger.Logger

	mu      sync.Mutex
	mgr     *task.Manager
	ctx     context.Context
	units   map[uint8]*unit
	devices map[fieldbus.DeviceID]fieldbus.Device
	outbox  *fieldbus.Outbox
	onInput fieldbus.InputHandler
}

var _ fieldbus.Transport = (*Transport)(nil)

// New creates a transport. A nil factory selects DefaultClientFactory.
func New(cfg Config, factory ClientFactory, l logger.Logger) *Transport {
	if factory == nil {
		factory = DefaultClientFactory
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.FailureEscalation <= 0 {
		cfg.FailureEscalation = 10
	}
	if l == nil {
		l = logger.GetLogger()
	}

	return &Transport{
		cfg:     cfg,
		factory: factory,
		logger:  l.With("component", "fieldbus.modbus", "address", cfg.Address),
		outbox:  fieldbus.NewOutbox(),
	}
}

func (t *Transport) Open(ctx context.Context, devices []fieldbus.Device, onInput fieldbus.InputHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mgr != nil {
		return errors.New("modbus: transport already open")
	}

	t.units = make(map[uint8]*unit)
	t.devices = make(map[fieldbus.DeviceID]fieldbus.Device, len(devices))
	for _, dev := range devices {
		if (dev.InputSize+1)/2 > maxReadRegisters || (dev.OutputSize+1)/2 > maxWriteRegisters {
			return fmt.Errorf("%w: %s", ErrRegisterSize, dev.Name)
		}
		t.devices[dev.ID] = dev
		if _, ok := t.units[dev.Unit]; !ok {
			c, closeFn := t.factory(t.cfg.Address, dev.Unit, t.cfg.Timeout)
			t.units[dev.Unit] = &unit{client: c, close: closeFn}
		}
	}
	t.onInput = onInput

	t.mgr = task.NewManager(ctx, t.logger)
	t.ctx = t.mgr.Context()
	if _, err := t.mgr.StartInterval("modbus-poll", t.poll, t.cfg.PollInterval, false); err != nil {
		return err
	}

	return t.mgr.Start("modbus-write", t.writeLoop, nil)
}

// Write queues the output image for the writer task.
func (t *Transport) Write(dev fieldbus.DeviceID, data []byte) error {
	t.mu.Lock()
	_, ok := t.devices[dev]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", fieldbus.ErrUnknownDevice, dev)
	}
	t.outbox.Put(dev, data)

	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	mgr := t.mgr
	t.mgr = nil
	t.mu.Unlock()

	if mgr == nil {
		return nil
	}
	mgr.Stop()
	mgr.Wait()

	var errs []error
	for _, u := range t.units {
		if u.close != nil {
			if err := u.close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func (t *Transport) poll() bool {
	for _, dev := range t.devices {
		if dev.InputSize == 0 {
			continue
		}
		u := t.units[dev.Unit]
		regs := uint16((dev.InputSize + 1) / 2)
		data, err := u.client.ReadInputRegisters(dev.InputAddress, regs)
		if err != nil {
			t.failed(dev, u, "read input registers", err)
			continue
		}
		t.recovered(dev, u)
		if len(data) > dev.InputSize {
			data = data[:dev.InputSize]
		}
		t.onInput(dev.ID, 0, data)
	}

	return true
}

func (t *Transport) writeLoop() bool {
	select {
	case <-t.ctx.Done():
		return false
	case <-t.outbox.Ready():
	}

	for _, w := range t.outbox.Take() {
		dev := t.devices[w.Device]
		u := t.units[dev.Unit]
		data := w.Data
		if len(data)%2 != 0 {
			data = append(data, 0)
		}
		if _, err := u.client.WriteMultipleRegisters(dev.OutputAddress, uint16(len(data)/2), data); err != nil {
			t.failed(dev, u, "write multiple registers", err)
			continue
		}
		t.recovered(dev, u)
	}

	return true
}

// failed logs the first failure of a series at warn level and every FailureEscalation-th one at
// error level.
func (t *Transport) failed(dev fieldbus.Device, u *unit, op string, err error) {
	n := u.failures.Add(1)
	switch {
	case n == 1:
		t.logger.Warn("modbus request failed", "device", dev.Name, "op", op, "error", err)
	case n%int64(t.cfg.FailureEscalation) == 0:
		t.logger.Error("modbus device unreachable", "device", dev.Name, "op", op, "failures", n, "error", err)
	}
}

func (t *Transport) recovered(dev fieldbus.Device, u *unit) {
	if n := u.failures.Swap(0); n > 0 {
		t.logger.Info("modbus device recovered", "device", dev.Name, "failures", n)
	}
}
