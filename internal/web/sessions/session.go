package sessions

import (
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const memberIDKey = "memberID"

// Session is the admin session stored in a cookie.
type Session struct {
	base      *sessions.Session
	needsSave bool
}

func (s *Session) NeedsSave() bool {
	return s.needsSave
}

// MemberID returns the admin profile that logged in.
func (s *Session) MemberID() (uuid.UUID, bool) {
	raw, ok := s.base.Values[memberIDKey].(string)
	if !ok {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}

	return id, true
}

func (s *Session) SetMemberID(id uuid.UUID) {
	s.needsSave = true
	s.base.Values[memberIDKey] = id.String()
}

// Clear removes all values and expires the cookie on the next save.
func (s *Session) Clear() {
	s.needsSave = true
	for k := range s.base.Values {
		delete(s.base.Values, k)
	}
	s.base.Options.MaxAge = -1
}
