package heap

import (
	"os"
	"strings"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v2"
)

// Config carries the heap's tunable knobs: card
// size, chunk sizing bounds, the object header size precondition, the mark
// stack's bounded capacity, and the initial allocation budget.
type Config struct {
	CardSize       uintptr
	MinChunkSize   uintptr
	MaxChunkSize   uintptr
	HeaderSize     uintptr
	MarkStackDepth int
	InitialBudget  int64
}

// fileConfig is the YAML-facing shape of Config: sizes are written as
// human-friendly strings ("256B", "1MiB") via go-bytesize rather than raw
// integers, matching how an embedded target's board/heap configuration
// would be hand-edited.
type fileConfig struct {
	CardSize       string `yaml:"card_size"`
	MinChunkSize   string `yaml:"min_chunk_size"`
	MaxChunkSize   string `yaml:"max_chunk_size"`
	HeaderSize     string `yaml:"header_size"`
	MarkStackDepth int    `yaml:"mark_stack_depth"`
	InitialBudget  string `yaml:"initial_budget"`
}

// DefaultConfig returns the values used when a field is left at its zero
// value: a 256-byte card,
// a 4096-byte floor on chunk size, and a generous ceiling.
func DefaultConfig() Config {
	return Config{
		CardSize:       DefaultCardSize,
		MinChunkSize:   MinimumChunkSize,
		MaxChunkSize:   16 * 1024 * 1024,
		HeaderSize:     2 * WordSize,
		MarkStackDepth: 4096,
		InitialBudget:  1 << 20,
	}
}

// setDefaults fills any zero-valued field from DefaultConfig.
func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.CardSize == 0 {
		c.CardSize = d.CardSize
	}
	if c.MinChunkSize == 0 {
		c.MinChunkSize = d.MinChunkSize
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = d.MaxChunkSize
	}
	if c.HeaderSize == 0 {
		c.HeaderSize = d.HeaderSize
	}
	if c.MarkStackDepth == 0 {
		c.MarkStackDepth = d.MarkStackDepth
	}
	if c.InitialBudget == 0 {
		c.InitialBudget = d.InitialBudget
	}
}

// LoadConfig reads a YAML heap configuration file, parsing its size fields
// with go-bytesize so operators can write "64KiB" instead of a raw integer.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(raw)
}

// ParseConfig parses a YAML document into a Config.
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, err
	}

	cfg := Config{MarkStackDepth: fc.MarkStackDepth}
	var err error
	if cfg.CardSize, err = parseSize(fc.CardSize); err != nil {
		return Config{}, err
	}
	if cfg.MinChunkSize, err = parseSize(fc.MinChunkSize); err != nil {
		return Config{}, err
	}
	if cfg.MaxChunkSize, err = parseSize(fc.MaxChunkSize); err != nil {
		return Config{}, err
	}
	if cfg.HeaderSize, err = parseSize(fc.HeaderSize); err != nil {
		return Config{}, err
	}
	budget, err := parseSize(fc.InitialBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.InitialBudget = int64(budget)

	cfg.setDefaults()
	return cfg, nil
}

func parseSize(s string) (uintptr, error) {
	if s == "" {
		return 0, nil
	}
	// go-bytesize's KB, MB, ... are already powers of 1024 but it does not
	// accept the binary spelling, so "64KiB" is handed to it as "64KB".
	if strings.HasSuffix(s, "iB") {
		s = strings.TrimSuffix(s, "iB") + "B"
	}
	bs, err := bytesize.Parse(s)
	if err != nil {
		return 0, err
	}
	return uintptr(bs), nil
}
