package hooks

// Config is the top-level configuration for hooks loaded from .monet.hooks.yml.
type Config struct {
	Version int         `yaml:"version"`
	Hooks   HooksConfig `yaml:"hooks"`
}

// HooksConfig contains all hook configurations.
type HooksConfig struct {
	PostIteration []*HookConfig `yaml:"post_iteration"` // After each drawing turn's snapshot is saved
	OnComplete    []*HookConfig `yaml:"on_complete"`    // After the artist statement is written
}

// HookConfig defines a single hook's configuration.
type HookConfig struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout"` // seconds, default 30
}

// DefaultTimeout is the default timeout for hook execution in seconds.
const DefaultTimeout = 30
