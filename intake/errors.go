package intake

import "fmt"

// UnsupportedTypeError is returned when a source extension maps to no
// structural type, at classification or routing time.
type UnsupportedTypeError struct {
	Ext string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported file type: %q", e.Ext)
}

// InvalidJSONError is returned when the JSON handler cannot parse its input.
type InvalidJSONError struct {
	Err error
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("invalid json content: %v", e.Err)
}

func (e *InvalidJSONError) Unwrap() error { return e.Err }

// ConfigurationError is a fatal wiring problem at construction time, such
// as a missing credential or store.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}
