package evolve

// Config holds the numeric parameters of the search loop.
type Config struct {
	// GenerationSize is the total number of offspring evaluated per
	// generation. Zero is legal: every generation re-emits the incumbent.
	GenerationSize int

	// RefineCount is how many of the offspring come from Refine rather
	// than Mutate. Must satisfy 0 <= RefineCount <= GenerationSize.
	RefineCount int

	// Parallelism bounds how many offspring are evaluated concurrently.
	// Values below 2 mean sequential evaluation.
	Parallelism int

	// Seed initializes the root random source. Offspring receive
	// independently derived sources, so runs are reproducible for a given
	// seed even under parallel evaluation.
	Seed int64
}

// ConfigError reports an invalid search configuration. It is returned by
// New before any generation runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid config: " + e.Field + " " + e.Reason
}

func (c Config) validate() error {
	if c.GenerationSize < 0 {
		return &ConfigError{Field: "GenerationSize", Reason: "cannot be negative"}
	}
	if c.RefineCount < 0 {
		return &ConfigError{Field: "RefineCount", Reason: "cannot be negative"}
	}
	if c.RefineCount > c.GenerationSize {
		return &ConfigError{Field: "RefineCount", Reason: "cannot exceed GenerationSize"}
	}
	if c.Parallelism < 0 {
		return &ConfigError{Field: "Parallelism", Reason: "cannot be negative"}
	}
	return nil
}
