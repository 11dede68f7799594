package sessions

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const CookieName = "vh-session"

// Options configures the session cookie.
type Options struct {
	// Keys are pairs of authentication and encryption keys, see securecookie.
	Keys   [][]byte
	MaxAge int
	Secure bool
}

type Store struct {
	store sessions.Store
}

func NewStore(store sessions.Store) *Store {
	return &Store{store: store}
}

// NewCookieStore creates a Store that keeps sessions in HttpOnly, SameSite=Strict cookies.
func NewCookieStore(opts Options) *Store {
	cs := sessions.NewCookieStore(opts.Keys...)
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   opts.MaxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	cs.MaxAge(opts.MaxAge)

	return NewStore(cs)
}

func (s *Store) Get(r *http.Request) (*Session, error) {
	base, err := s.store.Get(r, CookieName)
	if err != nil && base == nil {
		return nil, err
	}

	// Cookies that fail to decode, for example after a key rotation,
	// result in a new session.
	return &Session{base: base}, nil
}

func (s *Store) Save(r *http.Request, w http.ResponseWriter, sess *Session) error {
	err := s.store.Save(r, w, sess.base)
	if err != nil {
		return err
	}

	sess.needsSave = false
	return nil
}
