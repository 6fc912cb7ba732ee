// ABOUTME: API key gate deciding whether a request path and credential are admitted
// ABOUTME: Keys are held as BLAKE2b digests and compared in constant time

package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Outcome is the gate's verdict for one request.
type Outcome int

// Gate outcomes
const (
	Admitted Outcome = iota
	Missing
	Malformed
	InvalidKey
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Missing:
		return "missing"
	case Malformed:
		return "malformed"
	default:
		return "invalid_key"
	}
}

// Message is the client-facing explanation for a rejection.
func (o Outcome) Message() string {
	switch o {
	case Missing:
		return "Missing authorization header"
	case Malformed:
		return "Invalid authorization header format"
	case InvalidKey:
		return "Invalid API key"
	default:
		return ""
	}
}

// Default header settings.
const (
	DefaultHeaderName = "Authorization"
	DefaultPrefix     = "Bearer "
)

// DefaultPublicPaths never require a credential.
var DefaultPublicPaths = []string{"/health", "/ready"}

// Config holds the accepted keys and where to find them.
type Config struct {
	APIKeys     []string
	HeaderName  string
	Prefix      string
	PublicPaths []string
}

// Gate is immutable after construction and safe for concurrent use.
type Gate struct {
	digests    [][blake2b.Size256]byte
	headerName string
	prefix     string
	public     map[string]struct{}
}

// NewGate builds a gate. An empty HeaderName takes DefaultHeaderName and a
// nil PublicPaths takes DefaultPublicPaths. Prefix is used as given: empty
// means the header carries the bare key.
func NewGate(cfg Config) *Gate {
	g := &Gate{
		headerName: cfg.HeaderName,
		prefix:     cfg.Prefix,
		public:     make(map[string]struct{}),
	}
	if g.headerName == "" {
		g.headerName = DefaultHeaderName
	}

	paths := cfg.PublicPaths
	if paths == nil {
		paths = DefaultPublicPaths
	}
	for _, p := range paths {
		g.public[p] = struct{}{}
	}

	seen := make(map[[blake2b.Size256]byte]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k == "" {
			continue
		}
		d := blake2b.Sum256([]byte(k))
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		g.digests = append(g.digests, d)
	}
	return g
}

// HeaderName is the header carrying the credential.
func (g *Gate) HeaderName() string { return g.headerName }

// Enabled reports whether any key is configured. A gate without keys
// admits every request.
func (g *Gate) Enabled() bool { return len(g.digests) > 0 }

// RequiresAuth reports whether path needs a credential.
func (g *Gate) RequiresAuth(path string) bool {
	_, ok := g.public[path]
	return !ok
}

// ValidateKey reports whether key is one of the configured keys.
func (g *Gate) ValidateKey(key string) bool {
	d := blake2b.Sum256([]byte(key))
	match := 0
	for i := range g.digests {
		match |= subtle.ConstantTimeCompare(d[:], g.digests[i][:])
	}
	return match == 1
}

// Check decides a request given its path and raw header value.
func (g *Gate) Check(path, headerValue string) Outcome {
	if !g.RequiresAuth(path) || !g.Enabled() {
		return Admitted
	}
	if headerValue == "" {
		return Missing
	}
	if !strings.HasPrefix(headerValue, g.prefix) {
		return Malformed
	}
	if !g.ValidateKey(strings.TrimPrefix(headerValue, g.prefix)) {
		return InvalidKey
	}
	return Admitted
}

// KeyID is a short non-reversible fingerprint of key, safe to log.
func KeyID(key string) string {
	d := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(d[:4])
}
