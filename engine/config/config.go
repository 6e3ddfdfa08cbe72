package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultFileName     = "prism.toml"
	DefaultBaseCapacity = 1000
)

type Config struct {
	Log         LogConfig        `toml:"log"`
	Descriptors DescriptorConfig `toml:"descriptors"`
	Scene       SceneConfig      `toml:"scene"`
	Textures    TextureConfig    `toml:"textures"`
	Vulkan      VulkanConfig     `toml:"vulkan"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// DescriptorConfig sizes every descriptor pool: each descriptor type gets
// ratio * base_capacity slots and a pool holds at most base_capacity sets.
type DescriptorConfig struct {
	BaseCapacity uint32             `toml:"base_capacity"`
	Ratios       map[string]float32 `toml:"ratios"`
}

// SceneConfig selects the scene to build and the transform applied to its roots.
type SceneConfig struct {
	Index       int       `toml:"index"`
	Translation []float32 `toml:"translation"`
	Rotation    []float32 `toml:"rotation"`
	Scale       []float32 `toml:"scale"`
}

type TextureConfig struct {
	Anisotropy bool   `toml:"anisotropy"`
	MipFilter  string `toml:"mip_filter"`
}

type VulkanConfig struct {
	ApplicationName string `toml:"application_name"`
	Validation      bool   `toml:"validation"`
}

// DefaultRatios mirrors the pool composition the renderer has always used.
func DefaultRatios() map[string]float32 {
	return map[string]float32{
		"sampler":                0.5,
		"combined_image_sampler": 4,
		"sampled_image":          4,
		"storage_image":          1,
		"uniform_texel_buffer":   1,
		"storage_texel_buffer":   1,
		"uniform_buffer":         2,
		"storage_buffer":         2,
		"uniform_buffer_dynamic": 1,
		"storage_buffer_dynamic": 1,
		"input_attachment":       0.5,
	}
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Descriptors: DescriptorConfig{
			BaseCapacity: DefaultBaseCapacity,
			Ratios:       DefaultRatios(),
		},
		Scene: SceneConfig{
			Index: -1,
		},
		Textures: TextureConfig{
			Anisotropy: true,
			MipFilter:  "linear",
		},
		Vulkan: VulkanConfig{
			ApplicationName: "prism",
		},
	}
}

// Load reads path from fs on top of the defaults. A missing file is not an
// error: the defaults are returned as they are.
func Load(fs billy.Filesystem, path string) (*Config, error) {
	cfg := Default()

	f, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode unmarshals TOML data into cfg and validates the result. Ratios
// given in data replace the default entry of the same name only.
func Decode(data []byte, cfg *Config) error {
	defaults := cfg.Descriptors.Ratios
	cfg.Descriptors.Ratios = nil
	if err := toml.Unmarshal(data, cfg); err != nil {
		return err
	}
	if cfg.Descriptors.Ratios == nil {
		cfg.Descriptors.Ratios = defaults
	} else {
		for name, ratio := range defaults {
			if _, ok := cfg.Descriptors.Ratios[name]; !ok {
				cfg.Descriptors.Ratios[name] = ratio
			}
		}
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Descriptors.BaseCapacity == 0 {
		return errors.New("descriptors.base_capacity must be greater than zero")
	}
	known := DefaultRatios()
	for _, name := range c.Descriptors.RatioNames() {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("descriptors.ratios: unknown descriptor type %q", name)
		}
		if c.Descriptors.Ratios[name] < 0 {
			return fmt.Errorf("descriptors.ratios.%s must not be negative", name)
		}
	}
	if n := len(c.Scene.Translation); n != 0 && n != 3 {
		return fmt.Errorf("scene.translation needs 3 components, got %d", n)
	}
	if n := len(c.Scene.Rotation); n != 0 && n != 4 {
		return fmt.Errorf("scene.rotation needs 4 components, got %d", n)
	}
	if n := len(c.Scene.Scale); n != 0 && n != 3 {
		return fmt.Errorf("scene.scale needs 3 components, got %d", n)
	}
	switch c.Textures.MipFilter {
	case "", "linear", "nearest":
	default:
		return fmt.Errorf("textures.mip_filter must be linear or nearest, got %q", c.Textures.MipFilter)
	}
	return nil
}

// RatioNames returns the configured descriptor type names in a stable order.
func (d DescriptorConfig) RatioNames() []string {
	names := make([]string, 0, len(d.Ratios))
	for name := range d.Ratios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
