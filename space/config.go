package space

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memmap/memutils"
	"golang.org/x/exp/slog"
	"sigs.k8s.io/yaml"
)

// Config describes an address space and the static regions reserved in it before use. It is read
// from YAML or JSON documents such as:
//
//	size: 65536
//	seed: 7
//	static:
//	  - name: vectors
//	    start: 0
//	    size: 1024
type Config struct {
	// Size is the number of addressable bytes
	Size int `json:"size"`
	// Seed seeds the generator behind the randomized allocation modes
	Seed uint64 `json:"seed,omitempty"`
	// Synchronized sets CreateSynchronized on the address space
	Synchronized bool `json:"synchronized,omitempty"`
	// DisableWarnings suppresses diagnostics for recoverable failures
	DisableWarnings bool `json:"disableWarnings,omitempty"`
	// DisableInfo suppresses informational diagnostics
	DisableInfo bool `json:"disableInfo,omitempty"`
	// Static lists regions placed with AllocateStatic, in order, when the space is created
	Static []StaticRegion `json:"static,omitempty"`
}

// StaticRegion is a static buffer reserved at a fixed address of the root level
type StaticRegion struct {
	Name  string `json:"name,omitempty"`
	Start int    `json:"start"`
	Size  int    `json:"size"`
	// Alignment and Granularity default to 1 when left 0
	Alignment   uint `json:"alignment,omitempty"`
	Granularity uint `json:"granularity,omitempty"`
}

// ParseConfig reads a YAML or JSON document into a Config. Unknown fields are rejected.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	err := yaml.UnmarshalStrict(data, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse address space configuration")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfig reads and parses the configuration file at path
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read address space configuration %s", path)
	}

	return ParseConfig(data)
}

// Validate checks the configuration for values the address space would reject. Overlapping static
// regions are only detected when the regions are placed.
func (c *Config) Validate() error {
	if c.Size < 1 {
		return errors.Wrapf(memutils.ErrInvalidSize, "configured size %d", c.Size)
	}

	for i, region := range c.Static {
		if region.Size < 1 {
			return errors.Wrapf(memutils.ErrInvalidSize, "static region %d (%q) has size %d", i, region.Name, region.Size)
		}

		if region.Start < 0 || region.Start+region.Size > c.Size {
			return errors.Wrapf(memutils.ErrAddressOutOfRange, "static region %d (%q) at %d+%d does not fit in %d bytes",
				i, region.Name, region.Start, region.Size, c.Size)
		}
	}

	return nil
}

// CreateOptions converts the configuration into options for New
func (c *Config) CreateOptions() CreateOptions {
	options := CreateOptions{
		Size:            c.Size,
		Seed:            c.Seed,
		DisableWarnings: c.DisableWarnings,
		DisableInfo:     c.DisableInfo,
	}

	if c.Synchronized {
		options.Flags |= CreateSynchronized
	}

	return options
}

// NewFromConfig creates an address space from cfg and reserves its static regions
func NewFromConfig(logger *slog.Logger, cfg *Config) (*AddressSpace, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	space, err := New(logger, cfg.CreateOptions())
	if err != nil {
		return nil, err
	}

	for _, region := range cfg.Static {
		buf, err := space.staticRegionBuffer(region)
		if err != nil {
			return nil, err
		}

		err = space.AllocateStatic(buf)
		if err != nil {
			_ = buf.Release()
			return nil, errors.Wrapf(err, "cannot reserve static region %q", region.Name)
		}
	}

	return space, nil
}

func (s *AddressSpace) staticRegionBuffer(region StaticRegion) (Buffer, error) {
	buf := s.NewBufferAt(region.Start, region.Size)

	err := buf.SetName(region.Name)
	if err == nil && region.Alignment > 0 {
		err = buf.SetAlignment(region.Alignment)
	}
	if err == nil && region.Granularity > 0 {
		err = buf.SetGranularity(region.Granularity)
	}

	if err != nil {
		_ = buf.Release()
		return Buffer{}, err
	}

	return buf, nil
}
