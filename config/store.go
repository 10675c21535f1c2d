package config

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"gopkg.in/ini.v1"

	"github.com/arloliu/go-seamctl/logger"
)

// Tunable option names accepted by Store.SetTunable.
const (
	TunableAnalogThreshold = "sampler.analog_threshold"
)

type tunable struct {
	section string
	key     string
	apply   func(s *Snapshot, value string) error
}

var tunables = map[string]tunable{
	TunableAnalogThreshold: {
		section: "sampler",
		key:     "analog_threshold",
		apply: func(s *Snapshot, value string) error {
			v, err := strconv.ParseUint(value, 0, 32)
			if err != nil {
				return err
			}
			s.Sampler.AnalogThreshold = uint32(v)

			return nil
		},
	},
}

// Store owns the configuration file and the current Snapshot.
type Store struct {
	mu     sync.Mutex
	path   string
	file   *ini.File
	snap   atomic.Pointer[Snapshot]
	issues []error
	logger logger.Logger
}

// Load reads the INI file at path.
func Load(path string, l logger.Logger) (*Store, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return newStore(path, file, l), nil
}

// Parse reads an in-memory INI document. The resulting store cannot be saved.
func Parse(data []byte, l logger.Logger) (*Store, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return newStore("", file, l), nil
}

func newStore(path string, file *ini.File, l logger.Logger) *Store {
	if l == nil {
		l = logger.GetLogger()
	}
	l = l.With("component", "config")

	p := &parser{logger: l}
	s := &Store{path: path, file: file, logger: l}
	s.snap.Store(p.parse(file))
	s.issues = p.issues

	return s
}

// Snapshot returns the current configuration. The returned value must not be modified.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Issues returns the configuration errors found while loading.
func (s *Store) Issues() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]error(nil), s.issues...)
}

// SetTunable changes a user tunable option. The new value is visible through Snapshot at once
// and is persisted by the next Save.
func (s *Store) SetTunable(name, value string) error {
	t, ok := tunables[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTunable, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.snap.Load()
	if err := t.apply(&next, value); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidOption, name, err)
	}

	s.file.Section(t.section).Key(t.key).SetValue(value)
	s.snap.Store(&next)
	s.logger.Info("tunable changed", "name", name, "value", value)

	return nil
}

// Save writes the configuration file back to its path.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return ErrNoPath
	}

	return s.file.SaveTo(s.path)
}

// WriteTo writes the INI document to w.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.file.WriteTo(w)
}
