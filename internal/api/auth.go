package api

import (
	"net/http"
	"strings"

	"github.com/ppiankov/aorta/internal/models"
)

// Credential and session carriers.
const (
	UserHeader    = "X-Aorta-User"
	AuthHeader    = "X-Aorta-Auth"
	SessionHeader = "X-Aorta-Session"
	SessionCookie = "aorta_session"
)

// credentialsOf returns the identity and secret a request carries, from
// headers or from the fields of a form post.
func credentialsOf(r *http.Request) (identity, secret string) {
	identity = strings.TrimSpace(r.Header.Get(UserHeader))
	secret = r.Header.Get(AuthHeader)
	if identity == "" && secret == "" && isForm(r) {
		if err := r.ParseForm(); err == nil {
			identity = strings.TrimSpace(r.PostForm.Get(formUserName))
			secret = r.PostForm.Get(formAuthCode)
		}
	}
	return identity, secret
}

// sessionIDOf returns the session id a request carries, if any.
func sessionIDOf(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// caller resolves who is calling. Explicit credentials win over a session.
// With a session only the identity is known; the user record is re-read.
func (s *Server) caller(r *http.Request) (identity, secret string, fromSession bool, err error) {
	identity, secret = credentialsOf(r)
	if identity != "" || secret != "" {
		return identity, secret, false, nil
	}

	id := sessionIDOf(r)
	if id == "" || s.sessions == nil {
		return "", "", false, nil
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		return "", "", false, err
	}
	return sess.Identity, "", true, nil
}

// authorize checks that the caller may perform op on t.
func (s *Server) authorize(r *http.Request, t models.ResourceType, op models.Operation) (*models.User, error) {
	identity, secret, fromSession, err := s.caller(r)
	if err != nil {
		return nil, err
	}
	if fromSession {
		return s.gate.AuthorizeIdentity(t, op, identity)
	}
	return s.gate.Authorize(t, op, identity, secret)
}

// authorizeRole checks that the caller holds role.
func (s *Server) authorizeRole(r *http.Request, role models.Role) (*models.User, error) {
	identity, secret, fromSession, err := s.caller(r)
	if err != nil {
		return nil, err
	}
	if fromSession {
		return s.gate.AuthorizeIdentityRole(role, identity)
	}
	return s.gate.AuthorizeRole(role, identity, secret)
}
