package lwm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-seamctl/internal/pool"
	"github.com/arloliu/go-seamctl/internal/queue"
	"github.com/arloliu/go-seamctl/internal/task"
	"github.com/arloliu/go-seamctl/logger"
)

// EventKind classifies client events.
type EventKind uint8

const (
	// EventTelegram carries a telegram received from the device.
	EventTelegram EventKind = iota
	// EventConnected reports an established device connection.
	EventConnected
	// EventDisconnected reports a lost device connection. A pending selection is void.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventTelegram:
		return "telegram"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is posted by the client goroutines and consumed with DrainEvents.
type Event struct {
	Kind     EventKind
	Telegram Telegram
}

// requests holds the outbound requests not written yet. Each kind is a flag: requesting it twice
// before it is written sends it once.
type requests struct {
	selection *Selection
	stop      *Stop
	watchdog  bool
	signOff   bool
	signedOff chan struct{}
}

// next removes and returns the most urgent request.
func (r *requests) next() (Telegram, chan struct{}) {
	switch {
	case r.signOff:
		r.signOff = false
		done := r.signedOff
		r.signedOff = nil

		return SignOffClient{}, done
	case r.stop != nil:
		t := r.stop
		r.stop = nil

		return t, nil
	case r.selection != nil:
		t := r.selection
		r.selection = nil

		return t, nil
	case r.watchdog:
		r.watchdog = false
		return Watchdog{}, nil
	}

	return nil, nil
}

func (r *requests) reset() {
	if r.signedOff != nil {
		close(r.signedOff)
	}
	*r = requests{}
}

var errIdle = errors.New("idle read")

// Client is a connection to one LWM device.
type Client struct {
	cfg    settings
	logger logger.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stateMgr *ConnStateMgr
	taskMgr  *task.Manager

	connMu sync.Mutex
	conn   net.Conn

	reqMu   sync.Mutex
	reqCond *sync.Cond
	req     requests

	selectionPending atomic.Bool
	watchdogSentAt   atomic.Int64
	lastSendAt       atomic.Int64

	events  *queue.Queue[Event]
	metrics Metrics

	opened             atomic.Bool
	shutdown           atomic.Bool
	reconnectScheduled atomic.Bool
	reconnectWG        sync.WaitGroup
}

// NewClient creates a client. No connection is made before Open.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	snap := cfg.snapshot()
	c := &Client{
		cfg:    snap,
		logger: snap.logger.With("component", "lwm", "address", snap.address),
		events: queue.New[Event](),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.reqCond = sync.NewCond(&c.reqMu)
	c.taskMgr = task.NewManager(c.ctx, c.logger)
	c.stateMgr = NewConnStateMgr(c.ctx, c.logger, c.connStateHandler)

	return c, nil
}

// Open starts connecting in the background. The client keeps reconnecting until Close.
func (c *Client) Open() error {
	if c.shutdown.Load() {
		return ErrClientClosed
	}
	if !c.opened.CompareAndSwap(false, true) {
		return nil
	}

	c.stateMgr.ToConnectingAsync()

	return nil
}

// WaitConnected blocks until the device is connected or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	return c.stateMgr.WaitState(ctx, ConnectedState)
}

// Close signs off from a connected device, closes the connection and stops reconnecting.
func (c *Client) Close() error {
	if !c.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	if c.stateMgr.IsConnected() {
		done := make(chan struct{})
		c.post(func(r *requests) {
			if r.signedOff != nil {
				close(r.signedOff)
			}
			r.signOff = true
			r.signedOff = done
		})

		timer := pool.GetTimer(c.cfg.closeTimeout)
		select {
		case <-done:
		case <-timer.C:
			c.logger.Warn("sign-off not sent in time", "timeout", c.cfg.closeTimeout)
		}
		pool.PutTimer(timer)
	}

	c.cancel()
	c.stateMgr.ToClosed()
	c.reconnectWG.Wait()
	<-c.stateMgr.Done()

	return nil
}

// State returns the connection state.
func (c *Client) State() ConnState {
	return c.stateMgr.State()
}

// Connected reports whether the device is connected.
func (c *Client) Connected() bool {
	return c.stateMgr.IsConnected()
}

// Metrics returns the client counters.
func (c *Client) Metrics() *Metrics {
	return &c.metrics
}

// DrainEvents passes every queued event to fn in arrival order and returns their number.
// It never blocks and is meant to be called from a single consumer.
func (c *Client) DrainEvents(fn func(Event)) int {
	return c.events.Drain(fn)
}

// RequestSelection queues a program selection. It fails with ErrSelectionPending while a previous
// selection has not been acknowledged or abandoned.
func (c *Client) RequestSelection(sel Selection) error {
	if c.shutdown.Load() {
		return ErrClientClosed
	}
	if !c.stateMgr.IsConnected() {
		return ErrNotConnected
	}
	if !c.selectionPending.CompareAndSwap(false, true) {
		c.metrics.incSelectionRejectCount()
		c.logger.Warn("selection rejected, previous selection not acknowledged", "program", sel.Program)

		return ErrSelectionPending
	}

	c.post(func(r *requests) { r.selection = &sel })

	return nil
}

// SelectionPending reports whether a selection is waiting for its acknowledge.
func (c *Client) SelectionPending() bool {
	return c.selectionPending.Load()
}

// AbandonSelection forgets a pending selection, e.g. after its acknowledge timed out.
// A selection that was not written yet is dropped.
func (c *Client) AbandonSelection() {
	c.post(func(r *requests) { r.selection = nil })
	c.selectionPending.Store(false)
}

// RequestStop queues a stop of the current measurement.
func (c *Client) RequestStop(ackRequested bool) error {
	if c.shutdown.Load() {
		return ErrClientClosed
	}
	if !c.stateMgr.IsConnected() {
		return ErrNotConnected
	}

	c.post(func(r *requests) { r.stop = &Stop{AckRequested: ackRequested} })

	return nil
}

func (c *Client) post(fn func(r *requests)) {
	c.reqMu.Lock()
	fn(&c.req)
	c.reqCond.Signal()
	c.reqMu.Unlock()
}

// waitRequest blocks until a request is queued or ctx is done.
func (c *Client) waitRequest(ctx context.Context) (Telegram, chan struct{}) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if t, done := c.req.next(); t != nil {
			return t, done
		}
		c.reqCond.Wait()
	}
}

func (c *Client) resetRequests() {
	c.reqMu.Lock()
	c.req.reset()
	c.reqMu.Unlock()

	c.selectionPending.Store(false)
	c.watchdogSentAt.Store(0)
}

func (c *Client) connStateHandler(prevState ConnState, curState ConnState) {
	c.logger.Debug("connection state changes", "prevState", prevState, "curState", curState)

	switch curState {
	case ConnectingState:
		conn, err := net.DialTimeout("tcp", c.cfg.address, c.cfg.dialTimeout)
		if err != nil {
			c.connectFailed(err)
			c.stateMgr.ToClosedAsync()

			return
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()

		c.stateMgr.ToConnectedAsync()

	case ConnectedState:
		attempts := c.metrics.ConnRetryGauge.Load() + 1
		c.metrics.resetConnRetryGauge()
		c.resetRequests()
		c.lastSendAt.Store(time.Now().UnixNano())

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if err := c.startTasks(conn); err != nil {
			c.logger.Error("failed to start connection tasks", "error", err)
			c.stateMgr.ToClosedAsync()

			return
		}

		c.logger.Info("connected to LWM device", "attempts", attempts)
		c.events.Enqueue(Event{Kind: EventConnected})

	case ClosedState:
		c.closeConn()
		c.resetRequests()

		if prevState == ConnectedState {
			if c.shutdown.Load() {
				c.logger.Info("disconnected from LWM device")
			} else {
				c.logger.Warn("connection to LWM device lost, reconnecting", "delay", c.cfg.retryDelay)
			}
			c.events.Enqueue(Event{Kind: EventDisconnected})
		}

		if !c.shutdown.Load() {
			c.scheduleReconnect()
		}
	}
}

// connectFailed logs the first failure of a series at warn level and every failureEscalation-th
// one at error level.
func (c *Client) connectFailed(err error) {
	n := c.metrics.incConnRetryGauge()

	switch {
	case n == 1:
		c.logger.Warn("LWM device unreachable, retrying", "delay", c.cfg.retryDelay, "error", err)
	case int(n)%c.cfg.failureEscalation == 0:
		c.logger.Error("LWM device still unreachable", "attempts", n, "error", err)
	default:
		c.logger.Debug("LWM connection attempt failed", "attempts", n, "error", err)
	}
}

func (c *Client) scheduleReconnect() {
	if !c.reconnectScheduled.CompareAndSwap(false, true) {
		return
	}

	c.reconnectWG.Add(1)
	go func() {
		defer c.reconnectWG.Done()
		defer c.reconnectScheduled.Store(false)

		if !pool.Sleep(c.ctx, c.cfg.retryDelay) || c.shutdown.Load() {
			return
		}
		c.stateMgr.ToConnectingAsync()
	}()
}

func (c *Client) startTasks(conn net.Conn) error {
	if conn == nil {
		return errors.New("no connection")
	}

	ctx := c.taskMgr.Context()

	if err := c.taskMgr.Start("lwm-sender", c.senderTask(ctx, conn), nil); err != nil {
		return err
	}
	if err := c.taskMgr.Start("lwm-receiver", c.receiverTask(ctx, conn), c.stateMgr.ToClosedAsync); err != nil {
		return err
	}

	tick := max(min(c.cfg.watchdogInterval, c.cfg.watchdogTimeout)/2, time.Millisecond)
	_, err := c.taskMgr.StartInterval("lwm-watchdog", c.watchdogTask, tick, false)

	return err
}

// closeConn stops the connection tasks, closes the socket and waits for the tasks to return.
func (c *Client) closeConn() {
	c.taskMgr.Stop()

	c.connMu.Lock()
	if c.conn != nil {
		// a sign-off must reach the device, a broken connection is reset
		if tcpConn, ok := c.conn.(*net.TCPConn); ok && !c.shutdown.Load() {
			_ = tcpConn.SetLinger(0)
		}
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("close TCP connection", "error", err)
		}
		c.conn = nil
	}
	c.connMu.Unlock()

	// wake the sender so it observes the canceled context
	c.reqMu.Lock()
	c.reqCond.Broadcast()
	c.reqMu.Unlock()

	c.taskMgr.Wait()
}

func (c *Client) senderTask(ctx context.Context, conn net.Conn) task.Func {
	return func() bool {
		tel, done := c.waitRequest(ctx)
		if tel == nil {
			return false
		}

		if err := c.write(conn, tel); err != nil {
			c.metrics.incTelegramErrCount()
			if ctx.Err() == nil {
				c.logger.Error("failed to send telegram", "method", "senderTask", "telegram", tel.TelegramID(), "error", err)
				c.stateMgr.ToClosedAsync()
			}
			if done != nil {
				close(done)
			}

			return false
		}

		c.metrics.incTelegramSendCount()
		switch t := tel.(type) {
		case Watchdog:
			c.metrics.incWatchdogSendCount()
		case *Selection:
			if !t.AckRequested {
				c.selectionPending.Store(false)
			}
		case SignOffClient:
			close(done)
		}

		return true
	}
}

func (c *Client) write(conn net.Conn, tel Telegram) error {
	buf := Encode(tel, c.cfg.byteOrder)
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout)); err != nil {
		return err
	}

	now := time.Now().UnixNano()
	if _, ok := tel.(Watchdog); ok {
		c.watchdogSentAt.Store(now)
	}
	if _, err := conn.Write(buf); err != nil {
		return err
	}
	c.lastSendAt.Store(now)

	if c.logger.Level() == logger.DebugLevel {
		c.logger.Debug("telegram sent", "method", "write", "telegram", tel.TelegramID(), "length", len(buf)-HeaderSize)
	}

	return nil
}

func (c *Client) receiverTask(ctx context.Context, conn net.Conn) task.Func {
	rd := bufio.NewReader(conn)
	hdr := make([]byte, HeaderSize)

	return func() bool {
		err := c.readFull(ctx, conn, rd, hdr, true)
		if errors.Is(err, errIdle) {
			return true
		}
		if err != nil {
			c.readFailed(ctx, err)
			return false
		}

		h, err := DecodeHeader(hdr, c.cfg.byteOrder)
		if err != nil {
			// the stream position is lost
			c.metrics.incTelegramErrCount()
			c.logger.Error("invalid telegram header, dropping connection", "method", "receiverTask", "telegram", h.ID, "error", err)

			return false
		}

		payload := make([]byte, h.Length)
		if err := c.readFull(ctx, conn, rd, payload, false); err != nil {
			c.readFailed(ctx, err)
			return false
		}

		tel, err := DecodeFromDevice(h, payload, c.cfg.byteOrder)
		if err != nil {
			c.metrics.incTelegramErrCount()
			if errors.Is(err, ErrUnknownTelegram) {
				c.logger.Warn("unknown telegram discarded", "method", "receiverTask", "telegram", h.ID, "length", h.Length)
			} else {
				c.logger.Error("malformed telegram discarded", "method", "receiverTask", "telegram", h.ID, "error", err)
			}

			return true
		}

		c.metrics.incTelegramRecvCount()
		c.dispatch(tel)

		return true
	}
}

// readFull fills buf. Read deadlines expire every readTimeout so a canceled ctx is noticed; with
// idleOK an expiry before the first byte returns errIdle.
func (c *Client) readFull(ctx context.Context, conn net.Conn, rd *bufio.Reader, buf []byte, idleOK bool) error {
	n := 0
	for n < len(buf) {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.readTimeout)); err != nil {
			return err
		}

		m, err := rd.Read(buf[n:])
		n += m
		if err == nil {
			continue
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if n == 0 && idleOK {
				return errIdle
			}

			continue
		}

		return err
	}

	return nil
}

func (c *Client) readFailed(ctx context.Context, err error) {
	if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return
	}

	if errors.Is(err, io.EOF) {
		c.logger.Warn("connection closed by LWM device", "method", "receiverTask")
	} else {
		c.logger.Error("failed to read telegram", "method", "receiverTask", "error", err)
	}
}

func (c *Client) dispatch(tel Telegram) {
	if c.logger.Level() == logger.DebugLevel {
		c.logger.Debug("telegram received", "method", "dispatch", "telegram", tel.TelegramID(), "status", tel.Status())
	}

	switch t := tel.(type) {
	case *WatchdogAck:
		c.watchdogSentAt.Store(0)
		c.metrics.incWatchdogAckCount()

		return
	case *SelectionAck:
		c.selectionPending.Store(false)
		if t.Code != 0 {
			c.logger.Warn("selection refused by LWM device", "program", t.Program, "code", t.Code)
		}
	case *ErrorNotification:
		c.logger.Warn("LWM device error", "code", t.Code, "comment", t.Comment)
	}

	c.events.Enqueue(Event{Kind: EventTelegram, Telegram: tel})
}

// watchdogTask requests a watchdog after watchdogInterval without outbound telegrams and drops the
// connection when its acknowledge is late.
func (c *Client) watchdogTask() bool {
	now := time.Now().UnixNano()

	if sent := c.watchdogSentAt.Load(); sent != 0 {
		if time.Duration(now-sent) > c.cfg.watchdogTimeout {
			c.metrics.incWatchdogMissCount()
			c.logger.Error("watchdog acknowledge missing, reconnecting", "timeout", c.cfg.watchdogTimeout)
			c.stateMgr.ToClosedAsync()

			return false
		}

		return true
	}

	if time.Duration(now-c.lastSendAt.Load()) >= c.cfg.watchdogInterval {
		c.post(func(r *requests) { r.watchdog = true })
	}

	return true
}
