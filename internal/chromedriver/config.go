package chromedriver

import (
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Config controls the Chrome instance pool.
type Config struct {
	// PoolSize is a positive integer or "auto" to size from available RAM.
	PoolSize string

	// NavigateTimeout bounds a single page load.
	NavigateTimeout time.Duration

	// RestartAfterCount recycles an instance after this many scenario runs.
	RestartAfterCount int

	// RestartAfterTime recycles an instance after this age.
	RestartAfterTime time.Duration

	// Headless disables when debugging a flow visually.
	Headless bool
}

// DefaultConfig returns the settings used when the harness config leaves the
// chrome section out.
func DefaultConfig() *Config {
	return &Config{
		PoolSize:          "auto",
		NavigateTimeout:   30 * time.Second,
		RestartAfterCount: 50,
		RestartAfterTime:  30 * time.Minute,
		Headless:          true,
	}
}

// ResolvePoolSize turns the configured pool size into an instance count.
func (c *Config) ResolvePoolSize() int {
	if c.PoolSize == "" || c.PoolSize == "auto" {
		return c.autoPoolSize()
	}
	size, err := strconv.Atoi(c.PoolSize)
	if err != nil || size <= 0 {
		return c.autoPoolSize()
	}
	return size
}

// autoPoolSize sizes the pool from system memory, reserving headroom for the
// application under test and budgeting ~500MB per Chrome instance.
func (c *Config) autoPoolSize() int {
	var totalRAM int64
	v, err := mem.VirtualMemory()
	if err != nil {
		totalRAM = 8 << 30
	} else {
		totalRAM = int64(v.Total)
	}

	reserved := int64(2 << 30)
	perInstance := int64(500 << 20)

	size := int((totalRAM - reserved) / perInstance)
	if size < 1 {
		size = 1
	}
	if size > 8 {
		// UI scenarios are serial within an instance; more than a handful of
		// parallel browsers just thrashes the target app.
		size = 8
	}
	return size
}
