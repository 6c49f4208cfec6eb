package helpers

// ConfigOption is an interface for use with the vararg options pattern and ApplyOptions.
type ConfigOption[T any] interface {
	// Configure applies the option to the target, or returns an error if the option is invalid.
	Configure(*T) error
}

// ApplyOptions calls Configure for each option in order, stopping at the first error.
func ApplyOptions[T any, U ConfigOption[T]](target *T, options ...U) error {
	// U is a type parameter rather than ConfigOption[T] so that packages can declare their own
	// option interface and still pass a slice of it here.
	for _, o := range options {
		if err := o.Configure(target); err != nil {
			return err
		}
	}
	return nil
}
