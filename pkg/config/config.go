// Package config assembles the worker pool's configuration from command-line
// flags. Interactive prompting, INI persistence and engine-binary management
// are out of scope: LoadConfig only builds and validates a Config value.
package config

import (
	"errors"
	"flag"
	"fmt"
	"runtime"
	"strings"
)

// ErrConfig is returned by LoadConfig when the assembled configuration is
// invalid (e.g. no API key, or a non-positive thread or core count).
var ErrConfig = errors.New("invalid configuration")

// Config holds everything the supervisor needs to start a pool of workers.
type Config struct {
	Endpoint string
	APIKey   string

	Cores        int
	ThreadsPerInstance int
	MemoryMB     int

	EngineCommand string
	EngineDir     string
	SetOptions    map[string]string

	FixedBackoff bool
}

// Instances returns how many concurrent engine instances the pool should
// run: as many as fit within Cores given ThreadsPerInstance cores each.
func (c Config) Instances() int {
	if c.ThreadsPerInstance <= 0 {
		return 0
	}
	n := c.Cores / c.ThreadsPerInstance
	if n < 1 {
		n = 1
	}
	return n
}

// MemoryPerInstanceMB divides the total memory budget evenly across
// Instances().
func (c Config) MemoryPerInstanceMB() int {
	n := c.Instances()
	if n == 0 {
		return 0
	}
	return c.MemoryMB / n
}

// InstanceThreadBuckets distributes Cores round-robin across Instances()
// buckets, so bucket sizes differ by at most 1: the first few buckets get
// one extra core when Cores doesn't divide evenly. Each worker's Threads
// option is set to its own bucket's size.
func (c Config) InstanceThreadBuckets() []int {
	n := c.Instances()
	if n == 0 {
		return nil
	}

	buckets := make([]int, n)
	base, remainder := c.Cores/n, c.Cores%n
	for i := range buckets {
		buckets[i] = base
		if i < remainder {
			buckets[i]++
		}
	}
	return buckets
}

func (c Config) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrConfig)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: key is required", ErrConfig)
	}
	if c.EngineCommand == "" {
		return fmt.Errorf("%w: engine command is required", ErrConfig)
	}
	if c.ThreadsPerInstance <= 0 {
		return fmt.Errorf("%w: threads must be positive", ErrConfig)
	}
	if c.Cores <= 0 {
		return fmt.Errorf("%w: cores must be positive", ErrConfig)
	}
	return nil
}

// setOptionFlag accumulates repeated "--setoption NAME VALUE" flags into a map.
type setOptionFlag struct {
	dst *map[string]string
}

func (s setOptionFlag) String() string {
	return ""
}

func (s setOptionFlag) Set(v string) error {
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 || parts[0] == "" {
		return fmt.Errorf("setoption must be \"NAME VALUE\", got %q", v)
	}
	(*s.dst)[parts[0]] = parts[1]
	return nil
}

// LoadConfig defines and parses the worker pool's flags. fs is typically
// flag.CommandLine; args is typically os.Args[1:]. Call once at startup.
func LoadConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var c Config
	c.SetOptions = map[string]string{}

	fs.StringVar(&c.Endpoint, "endpoint", "https://engine.lichess.org", "job server base URL")
	fs.StringVar(&c.APIKey, "key", "", "job server API key")
	fs.IntVar(&c.Cores, "cores", runtime.NumCPU(), "cores available to the worker pool")
	fs.IntVar(&c.ThreadsPerInstance, "threads", 1, "engine threads per instance")
	fs.IntVar(&c.MemoryMB, "memory", 256, "total hash memory budget, in MB")
	fs.StringVar(&c.EngineCommand, "engine-command", "", "engine binary to execute")
	fs.StringVar(&c.EngineDir, "engine-dir", "", "working directory for the engine process")
	fs.BoolVar(&c.FixedBackoff, "fixed-backoff", false, "use a fixed (vs. exponential) retry backoff")
	fs.Var(setOptionFlag{dst: &c.SetOptions}, "setoption", "extra UCI option as \"NAME VALUE\" (repeatable)")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
