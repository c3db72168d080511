package session

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Header carries the session token on guarded requests.
const Header = "X-Session-Token"

// DefaultTTL is how long an unlocked session stays valid.
const DefaultTTL = 12 * time.Hour

// ErrInvalidCode is returned by Unlock for a wrong access code.
var ErrInvalidCode = errors.New("session: invalid access code")

// Session is the state of one dashboard client.
type Session struct {
	Unlocked bool
}

// Unlock transitions s to unlocked when code matches expected. A wrong code
// leaves s unchanged.
func (s Session) Unlock(code, expected string) (Session, error) {
	if expected == "" || subtle.ConstantTimeCompare([]byte(code), []byte(expected)) != 1 {
		return s, ErrInvalidCode
	}
	return Session{Unlocked: true}, nil
}

type entry struct {
	sess    Session
	expires time.Time
}

// Store keeps sessions keyed by opaque token. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]entry
	code     string
	ttl      time.Duration
	now      func() time.Time
}

// NewStore returns a Store that unlocks sessions with code. An empty code
// disables access control.
func NewStore(code string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]entry),
		code:     code,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Open reports whether access control is disabled.
func (st *Store) Open() bool { return st.code == "" }

// Unlock validates code and returns the token of a new unlocked session.
func (st *Store) Unlock(code string) (string, error) {
	sess, err := Session{}.Unlock(code, st.code)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	st.mu.Lock()
	st.sessions[token] = entry{sess: sess, expires: st.now().Add(st.ttl)}
	st.mu.Unlock()
	return token, nil
}

// Get returns the session for token. Unknown and expired tokens yield a
// locked session.
func (st *Store) Get(token string) Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.sessions[token]
	if !ok {
		return Session{}
	}
	if !st.now().Before(e.expires) {
		delete(st.sessions, token)
		return Session{}
	}
	return e.sess
}

// Require returns middleware that rejects requests without an unlocked
// session. With access control disabled every request passes.
func (st *Store) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if st.Open() {
			next.ServeHTTP(w, r)
			return
		}
		if !st.Get(r.Header.Get(Header)).Unlocked {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"locked: unlock with POST /api/v1/session"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
