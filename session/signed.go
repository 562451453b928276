package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gustweb/gust/httpheader"
	"github.com/gustweb/gust/proto"
)

// DefaultCookieName is the cookie used by SignedCookie unless overridden.
const DefaultCookieName = "session"

type payload struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// SignedCookie stores session state client-side in an HMAC-SHA256 signed
// cookie. A tampered or malformed cookie yields a fresh session rather than
// an error. An empty Secret disables the interface: Open returns (nil, nil).
type SignedCookie struct {
	Secret     []byte
	CookieName string
	Path       string
}

// NewSignedCookie creates a SignedCookie interface with the default cookie
// name and root path.
func NewSignedCookie(secret []byte) *SignedCookie {
	return &SignedCookie{
		Secret:     secret,
		CookieName: DefaultCookieName,
		Path:       "/",
	}
}

// Open loads the session from the scope's cookie headers, or creates a
// fresh one when no valid session cookie is present.
func (sc *SignedCookie) Open(ctx context.Context, scope *proto.Scope) (*Session, error) {
	if len(sc.Secret) == 0 {
		return nil, nil
	}

	raw, ok := sc.cookieValue(scope.Headers)
	if !ok {
		return NewSession(uuid.NewString()), nil
	}

	p, err := sc.verify(raw)
	if err != nil {
		return NewSession(uuid.NewString()), nil
	}

	s := NewSession(p.ID)
	s.values = p.Values
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.new = false

	return s, nil
}

// Save serializes and signs the session, adding a set-cookie entry to the
// given response headers. Null sessions must be filtered by the caller.
func (sc *SignedCookie) Save(ctx context.Context, s *Session, headers *httpheader.Headers) error {
	if len(sc.Secret) == 0 {
		return fmt.Errorf("saving session: no secret key configured")
	}

	data, err := json.Marshal(payload{ID: s.ID, Values: s.values})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(data)
	value := encoded + "." + sc.sign(encoded)

	cookie := http.Cookie{
		Name:     sc.CookieName,
		Value:    value,
		Path:     sc.Path,
		HttpOnly: true,
	}
	headers.Add("set-cookie", cookie.String())

	return nil
}

// IsNull reports whether s carries nothing worth persisting.
func (sc *SignedCookie) IsNull(s *Session) bool {
	return s == nil || s.null
}

// cookieValue scans the request cookie headers for the session cookie. Each
// outgoing cookie header holds a single name=value pair.
func (sc *SignedCookie) cookieValue(headers *httpheader.Headers) (string, bool) {
	if headers == nil {
		return "", false
	}
	for _, line := range headers.Values("cookie") {
		for pair := range strings.SplitSeq(line, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && name == sc.CookieName {
				return value, true
			}
		}
	}
	return "", false
}

func (sc *SignedCookie) verify(raw string) (payload, error) {
	var p payload

	encoded, sig, ok := strings.Cut(raw, ".")
	if !ok {
		return p, fmt.Errorf("malformed session cookie")
	}
	if !hmac.Equal([]byte(sig), []byte(sc.sign(encoded))) {
		return p, fmt.Errorf("session cookie signature mismatch")
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return p, fmt.Errorf("decoding session cookie: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decoding session payload: %w", err)
	}

	return p, nil
}

func (sc *SignedCookie) sign(encoded string) string {
	mac := hmac.New(sha256.New, sc.Secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
