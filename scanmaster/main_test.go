package scanmaster

import (
	"os"
	"testing"

	"github.com/arloliu/go-seamctl/logger"
)

func TestMain(m *testing.M) {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}
