package org

import "errors"

var (
	errRequired    = errors.New("required")
	errInvalidSlug = errors.New("must be 1 to 64 lowercase letters, digits or dashes")
	errInvalidRole = errors.New("invalid role")
)

func validSlug(s string) bool {
	if len(s) == 0 || len(s) > 64 {
		return false
	}

	for _, r := range s {
		if r != '-' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}

	return true
}
