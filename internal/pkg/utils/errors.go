package utils

// ErrNoConfig indicates a missing required configuration value.
// It is fatal at startup - the service must not start without it
type ErrNoConfig struct {
	name string
}

// NewErrNoConfig creates new error
func NewErrNoConfig(name string) error {
	return &ErrNoConfig{name: name}
}

func (e *ErrNoConfig) Error() string {
	return "no configuration value '" + e.name + "'"
}
