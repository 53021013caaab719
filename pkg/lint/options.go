package lint

// Options represents the options to configure the linter.
type Options struct {
	// Path is the path to the recipe directory, or a directory of recipe
	// directories, to lint.
	Path string

	// SkipRules removes the given rules from evaluation.
	SkipRules []string

	// Verbose includes rule descriptions and skip decisions in output.
	Verbose bool
}

// Option represents a linter option.
type Option func(*Options)

// WithPath sets the path to lint.
func WithPath(path string) Option {
	return func(o *Options) {
		o.Path = path
	}
}

// WithSkipRules sets the skip rules option.
func WithSkipRules(skipRules []string) Option {
	return func(o *Options) {
		o.SkipRules = skipRules
	}
}

// WithVerbose sets the verbose option.
func WithVerbose(verbose bool) Option {
	return func(o *Options) {
		o.Verbose = verbose
	}
}
