package outstation

import (
	"fmt"
	"time"
)

// Config configures the outstation stack.
type Config struct {
	ID string

	// Link layer
	LocalAddress  uint16
	RemoteAddress uint16

	// Listen endpoint for the TCP server channel
	ListenIP   string
	ListenPort int

	Database DatabaseConfig

	// Event buffer capacity per point type
	MaxBinaryEvents uint
	MaxAnalogEvents uint

	AllowUnsolicited bool
	SelectTimeout    time.Duration
}

// DatabaseConfig lists the configured points per type, ordered by index.
type DatabaseConfig struct {
	Binary []Point
	Analog []Point
}

// DefaultConfig returns the stack defaults used by the plant controller.
func DefaultConfig() Config {
	return Config{
		ID:               "outstation",
		LocalAddress:     101,
		RemoteAddress:    100,
		ListenIP:         "0.0.0.0",
		ListenPort:       20000,
		MaxBinaryEvents:  20,
		MaxAnalogEvents:  20,
		AllowUnsolicited: false,
		SelectTimeout:    10 * time.Second,
	}
}

// Endpoint returns the listen address in host:port form.
func (c Config) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.ListenIP, c.ListenPort)
}

// Validate checks the point layout and buffer sizes.
func (c Config) Validate() error {
	if c.LocalAddress == c.RemoteAddress {
		return fmt.Errorf("local and remote link address must differ, both are %d", c.LocalAddress)
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", c.ListenPort)
	}
	if c.MaxBinaryEvents == 0 || c.MaxAnalogEvents == 0 {
		return fmt.Errorf("event buffer capacity must be positive")
	}
	if err := validatePoints(Binary, c.Database.Binary); err != nil {
		return err
	}
	return validatePoints(Analog, c.Database.Analog)
}

func validatePoints(t PointType, points []Point) error {
	for i, p := range points {
		if p.Type != t {
			return fmt.Errorf("%s point at position %d has type %s", t, i, p.Type)
		}
		if int(p.Index) != i {
			return fmt.Errorf("%s point at position %d has index %d", t, i, p.Index)
		}
		if p.Class > Class3 {
			return fmt.Errorf("%s point %d has invalid class %d", t, p.Index, p.Class)
		}
	}
	return nil
}
