package errorz

import (
	"errors"
	"strings"
)

// InvalidInput signals that a provided input is invalid due to the wrapped errors.
// Errors that relate to a single field are wrapped in a Keyed error.
type InvalidInput []error

func (e InvalidInput) Error() string {
	var b strings.Builder
	b.WriteString("invalid input:\n")
	for _, err := range e {
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

func (e InvalidInput) Unwrap() []error {
	return e
}

// Fields returns the message of every keyed error by key. When a key
// occurs more than once the first error wins.
func (e InvalidInput) Fields() map[string]string {
	fields := make(map[string]string, len(e))
	for _, err := range e {
		var keyed Keyed
		if !errors.As(err, &keyed) {
			continue
		}

		if _, ok := fields[keyed.Key]; !ok {
			fields[keyed.Key] = keyed.Err.Error()
		}
	}

	return fields
}
