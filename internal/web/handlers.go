package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/schema"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/poll"
	"github.com/willemschots/volunteerhub/internal/signup"
)

func decodeError(err error) error {
	if err == nil {
		return nil
	}

	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		var invalidInput errorz.InvalidInput
		for key, e := range multiErr {
			invalidInput = append(invalidInput, errorz.Keyed{
				Key: key,
				Err: e,
			})
		}

		return invalidInput
	}

	return err
}

// acceptsHTML reports whether the client prefers a HTML page, which
// is the case for members following a link from an email.
func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// errorStatus maps an error to a HTTP status code and a message that is
// safe to show to the client.
func errorStatus(err error) (int, string) {
	var invalidInput errorz.InvalidInput
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &invalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, errorz.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, errorz.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errorz.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, signup.ErrFull):
		return http.StatusConflict, "opportunity is full"
	case errors.Is(err, signup.ErrStarted):
		return http.StatusGone, "opportunity has started"
	case errors.Is(err, poll.ErrClosed):
		return http.StatusGone, "poll is closed"
	case errors.Is(err, errorz.ErrConsumed):
		return http.StatusGone, "link was already used"
	case errors.Is(err, errorz.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, errorz.ErrConflict), errors.Is(err, errorz.ErrConstraintViolated):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// invalidFields lists the invalid fields of an InvalidInput error by key.
func invalidFields(err error) map[string]string {
	var invalidInput errorz.InvalidInput
	if !errors.As(err, &invalidInput) {
		return nil
	}

	return invalidInput.Fields()
}
