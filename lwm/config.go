package lwm

import (
	"encoding/binary"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/arloliu/go-seamctl/logger"
)

// Config holds the connection parameters of a Client.
type Config struct {
	mu sync.RWMutex

	// host of the LWM device.
	host string
	// port of the LWM device.
	port int

	// byteOrder of every multi-byte header and payload field.
	// Defaults to little-endian.
	byteOrder binary.ByteOrder

	// watchdogInterval is the idle time after which a watchdog telegram is sent.
	// Defaults to 500 milliseconds.
	watchdogInterval time.Duration
	// watchdogTimeout is the time a watchdog acknowledge may take before the connection is dropped.
	// Defaults to 40 milliseconds.
	watchdogTimeout time.Duration

	// retryDelay separates connection attempts.
	// Defaults to 1 second.
	retryDelay time.Duration
	// dialTimeout bounds one connection attempt.
	// Defaults to 2 seconds.
	dialTimeout time.Duration
	// readTimeout is the socket read deadline of the receiver; an expired idle read is not an error.
	// Defaults to 100 milliseconds.
	readTimeout time.Duration
	// writeTimeout is the socket write deadline of the sender.
	// Defaults to 1 second.
	writeTimeout time.Duration
	// closeTimeout bounds the sign-off on Close.
	// Defaults to 1 second.
	closeTimeout time.Duration

	// failureEscalation makes every Nth consecutive connection failure an error log; the
	// others are logged at debug level after the first warning.
	// Defaults to 10.
	failureEscalation int

	logger logger.Logger
}

// NewConfig creates a configuration for the device at host:port with optional functional options.
func NewConfig(host string, port int, opts ...Option) (*Config, error) {
	cfg := &Config{
		byteOrder:         binary.LittleEndian,
		watchdogInterval:  500 * time.Millisecond,
		watchdogTimeout:   40 * time.Millisecond,
		retryDelay:        time.Second,
		dialTimeout:       2 * time.Second,
		readTimeout:       100 * time.Millisecond,
		writeTimeout:      time.Second,
		closeTimeout:      time.Second,
		failureEscalation: 10,
		logger:            logger.GetLogger(),
	}

	if err := withHost(host).apply(cfg); err != nil {
		return cfg, err
	}
	if err := withPort(port).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Address returns host:port.
func (cfg *Config) Address() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))
}

// ByteOrder returns the configured byte order.
func (cfg *Config) ByteOrder() binary.ByteOrder {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.byteOrder
}

// WatchdogInterval returns the watchdog idle interval.
func (cfg *Config) WatchdogInterval() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.watchdogInterval
}

// WatchdogTimeout returns the watchdog acknowledge timeout.
func (cfg *Config) WatchdogTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.watchdogTimeout
}

// settings is the lock-free copy of a Config a Client works with.
type settings struct {
	address           string
	byteOrder         binary.ByteOrder
	watchdogInterval  time.Duration
	watchdogTimeout   time.Duration
	retryDelay        time.Duration
	dialTimeout       time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	closeTimeout      time.Duration
	failureEscalation int
	logger            logger.Logger
}

func (cfg *Config) snapshot() settings {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return settings{
		address:           net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port)),
		byteOrder:         cfg.byteOrder,
		watchdogInterval:  cfg.watchdogInterval,
		watchdogTimeout:   cfg.watchdogTimeout,
		retryDelay:        cfg.retryDelay,
		dialTimeout:       cfg.dialTimeout,
		readTimeout:       cfg.readTimeout,
		writeTimeout:      cfg.writeTimeout,
		closeTimeout:      cfg.closeTimeout,
		failureEscalation: cfg.failureEscalation,
		logger:            cfg.logger,
	}
}

// Option represents a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	return o.applyFunc(cfg)
}

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

func withHost(host string) Option {
	return newOptFunc("withHost", func(cfg *Config) error {
		if host == "" {
			return errors.New("host is empty")
		}
		cfg.host = host

		return nil
	})
}

func withPort(port int) Option {
	return newOptFunc("withPort", func(cfg *Config) error {
		if port < 0 || port > 65535 {
			return errors.New("port is out of range [0, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithByteOrder sets the byte order of telegram fields.
//
// The default value is binary.LittleEndian.
func WithByteOrder(order binary.ByteOrder) Option {
	return newOptFunc("WithByteOrder", func(cfg *Config) error {
		if order == nil {
			return errors.New("byte order is nil")
		}
		cfg.byteOrder = order

		return nil
	})
}

// WithWatchdogInterval sets the idle time after which a watchdog telegram is sent.
//
// The default value is 500 milliseconds.
func WithWatchdogInterval(val time.Duration) Option {
	return newOptFunc("WithWatchdogInterval", func(cfg *Config) error {
		if val <= 0 {
			return errors.New("watchdog interval must be positive")
		}
		cfg.watchdogInterval = val

		return nil
	})
}

// WithWatchdogTimeout sets how long a watchdog acknowledge may take.
//
// The default value is 40 milliseconds.
func WithWatchdogTimeout(val time.Duration) Option {
	return newOptFunc("WithWatchdogTimeout", func(cfg *Config) error {
		if val < time.Millisecond || val > time.Minute {
			return errors.New("watchdog timeout out of range [1ms, 1m]")
		}
		cfg.watchdogTimeout = val

		return nil
	})
}

// WithRetryDelay sets the delay between connection attempts.
//
// The default value is 1 second.
func WithRetryDelay(val time.Duration) Option {
	return newOptFunc("WithRetryDelay", func(cfg *Config) error {
		if val < time.Millisecond {
			return errors.New("retry delay must be at least 1ms")
		}
		cfg.retryDelay = val

		return nil
	})
}

// WithDialTimeout sets the timeout of one connection attempt.
//
// The default value is 2 seconds.
func WithDialTimeout(val time.Duration) Option {
	return newOptFunc("WithDialTimeout", func(cfg *Config) error {
		if val <= 0 {
			return errors.New("dial timeout must be positive")
		}
		cfg.dialTimeout = val

		return nil
	})
}

// WithReadTimeout sets the receiver read deadline.
//
// The default value is 100 milliseconds.
func WithReadTimeout(val time.Duration) Option {
	return newOptFunc("WithReadTimeout", func(cfg *Config) error {
		if val <= 0 {
			return errors.New("read timeout must be positive")
		}
		cfg.readTimeout = val

		return nil
	})
}

// WithWriteTimeout sets the sender write deadline.
//
// The default value is 1 second.
func WithWriteTimeout(val time.Duration) Option {
	return newOptFunc("WithWriteTimeout", func(cfg *Config) error {
		if val <= 0 {
			return errors.New("write timeout must be positive")
		}
		cfg.writeTimeout = val

		return nil
	})
}

// WithCloseTimeout bounds the sign-off performed by Close.
//
// The default value is 1 second.
func WithCloseTimeout(val time.Duration) Option {
	return newOptFunc("WithCloseTimeout", func(cfg *Config) error {
		if val <= 0 {
			return errors.New("close timeout must be positive")
		}
		cfg.closeTimeout = val

		return nil
	})
}

// WithFailureEscalation logs every nth consecutive connection failure at error level.
//
// The default value is 10.
func WithFailureEscalation(n int) Option {
	return newOptFunc("WithFailureEscalation", func(cfg *Config) error {
		if n <= 0 {
			return errors.New("failure escalation must be positive")
		}
		cfg.failureEscalation = n

		return nil
	})
}

// WithLogger sets the logger of the client.
//
// The default value is logger.GetLogger().
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
