package meter

import "fmt"

// FetchError is returned when a meter could not be reached or answered with a
// non-2xx status. StatusCode is 0 for transport failures and timeouts.
type FetchError struct {
	Meter      string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s (%s): status %d", e.Meter, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.Meter, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ValidationError is returned when a response body is not a valid reading.
// Field is empty when the body could not be decoded at all.
type ValidationError struct {
	Meter string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	prefix := "invalid reading"
	if e.Meter != "" {
		prefix = fmt.Sprintf("invalid reading from %s", e.Meter)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: field %s: %v", prefix, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
