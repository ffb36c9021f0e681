package dedupe

// Option configures a Window.
type Option func(*Window)

// WithMaxSize bounds the number of remembered ids. Zero or less is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(w *Window) {
		w.maxSize = maxSize
	}
}
