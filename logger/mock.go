package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock used by tests that assert on logged diagnostics.
//
// Every logging method records the message and the key-value slice, so expectations read like
//
//	l.On("Error", "misaligned string field", mock.Anything).Once()
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// AllowAll accepts any log call at any level; tests then only assert the calls they care about.
func (m *MockLogger) AllowAll() *MockLogger {
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Maybe()
	}
	m.On("Level").Return(InfoLevel).Maybe()
	m.On("SetLevel", mock.Anything).Maybe()

	return m
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	args := m.Called()
	return args.Get(0).(Level)
}

// With returns the receiver so expectations registered on the parent also match child loggers.
func (m *MockLogger) With(_ ...any) Logger {
	return m
}
