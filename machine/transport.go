package machine

import (
	"fmt"

	"github.com/arloliu/go-seamctl/config"
	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/fieldbus/canbus"
	"github.com/arloliu/go-seamctl/fieldbus/modbus"
	"github.com/arloliu/go-seamctl/fieldbus/virtual"
	"github.com/arloliu/go-seamctl/logger"
)

// NewTransport creates the fieldbus transport named by the [fieldbus] section.
func NewTransport(c config.Fieldbus, l logger.Logger) (fieldbus.Transport, error) {
	switch c.Transport {
	case config.TransportModbus:
		return modbus.New(modbus.Config{
			Address:           c.Address,
			Timeout:           c.Timeout,
			PollInterval:      c.PollInterval,
			FailureEscalation: c.FailureEscalation,
		}, nil, l), nil

	case config.TransportCAN:
		bus, err := canbus.Open(c.Interface)
		if err != nil {
			return nil, err
		}

		return canbus.New(bus, l), nil

	case config.TransportVirtual, "":
		return virtual.New(), nil
	}

	return nil, fmt.Errorf("%w: fieldbus transport %q", config.ErrInvalidOption, c.Transport)
}
