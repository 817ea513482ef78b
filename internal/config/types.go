package config

// Config is the process configuration: logging plus declarative pool
// definitions. All durations are Go duration strings (e.g. "30s", "30m").
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Pools declares execution pools to create (or reconfigure) at startup
	// and on hot-reload. The default pool may be declared here to override
	// its settings; it exists either way.
	Pools []PoolConfig `json:"pools,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

// PoolConfig is one declared pool.
//
// Min/Max of 0 mean "no override": a new pool gets the defaults (min=1,
// max=max(2, logical CPUs)) and an existing pool keeps its current values.
// An empty retention means 30m.
type PoolConfig struct {
	Name      string `json:"name"`
	Min       int    `json:"min,omitempty"`
	Max       int    `json:"max,omitempty"`
	Retention string `json:"retention,omitempty"`

	Modules   []string       `json:"modules,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
	Init      string         `json:"init,omitempty"`
}
