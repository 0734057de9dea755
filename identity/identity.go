// Package identity derives the principal identifier used as the rate
// limiting key for an inbound request.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Kind is the category of a principal identifier.
type Kind string

const (
	KindAPIKey Kind = "apikey"
	KindUser   Kind = "user"
	KindIP     Kind = "ip"
)

const apiKeyHexLen = 16

// ProxyTrust controls how the client address is resolved when no
// stronger identifier (API key, authenticated user) is available.
type ProxyTrust struct {
	// Hops is the number of trusted proxy hops in front of this process.
	// Zero means "no proxy": forwarding headers are ignored outright.
	Hops int
	// TrustAny, when set, trusts X-Forwarded-For/X-Real-IP unconditionally.
	// Mutually exclusive in practice with a finite Hops value greater than zero.
	TrustAny bool
}

// Subject is the authenticated identity attached to a request by an
// upstream auth layer, if any. An empty ID means "not authenticated."
type Subject struct {
	ID string
}

// HashAPIKey returns the principal value for a raw API key: the first
// 16 hex characters of its SHA-256 digest. The raw key never leaves
// this function.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:apiKeyHexLen]
}

// Identify derives the canonical principal string for r, following the
// precedence apikey > user > ip.
func Identify(r *http.Request, subject Subject, trust ProxyTrust) string {
	if key := apiKeyFromRequest(r); key != "" {
		return string(KindAPIKey) + ":" + HashAPIKey(key)
	}
	if subject.ID != "" {
		return string(KindUser) + ":" + subject.ID
	}
	addr := resolveAddress(r, trust)
	return string(KindIP) + ":" + addr
}

func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// resolveAddress determines the client address, honoring the configured
// proxy-trust policy. When trust.Hops is zero and TrustAny is false,
// forwarding headers are never consulted, so a client cannot spoof its
// own address by sending X-Forwarded-For.
//
// X-Forwarded-For entries are appended left to right as a request
// crosses each proxy, so the original client is always the leftmost
// entry and each trusted hop adds exactly one entry to the right of it.
// Trusting Hops proxies means discarding the rightmost Hops entries;
// TrustAny trusts every hop and always lands on index 0, the same end
// of the chain the Hops branch converges to as Hops grows.
func resolveAddress(r *http.Request, trust ProxyTrust) string {
	if trust.Hops <= 0 && !trust.TrustAny {
		return normalizeAddr(hostFromRemoteAddr(r.RemoteAddr))
	}

	if ip := realIPHeader(r); ip != "" {
		return normalizeAddr(ip)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		idx := 0
		if !trust.TrustAny {
			idx = len(parts) - 1 - trust.Hops
			if idx < 0 {
				idx = 0
			}
		}
		candidate := strings.TrimSpace(parts[idx])
		if candidate != "" {
			return normalizeAddr(candidate)
		}
	}

	return normalizeAddr(hostFromRemoteAddr(r.RemoteAddr))
}

func realIPHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

func hostFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// normalizeAddr strips an IPv4-mapped IPv6 prefix and falls back to
// "unknown" for anything that doesn't parse as an address at all.
func normalizeAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "unknown"
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		log.Debug().Str("addr", addr).Msg("could not parse client address, using unknown")
		return "unknown"
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// ParseProxyTrust parses the trust_proxy configuration value. Valid
// forms are "false", "true", or a positive integer string; the empty
// string is read as "false". Anything else is a configuration error the caller must surface at startup,
// not silently downgrade to "false".
func ParseProxyTrust(value string) (ProxyTrust, error) {
	switch value {
	case "", "false":
		return ProxyTrust{}, nil
	case "true":
		return ProxyTrust{TrustAny: true}, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return ProxyTrust{}, &InvalidProxyTrustError{Value: value}
	}
	return ProxyTrust{Hops: n}, nil
}

// InvalidProxyTrustError is returned by ParseProxyTrust for any value
// other than "", "false", "true", or a positive integer.
type InvalidProxyTrustError struct {
	Value string
}

func (e *InvalidProxyTrustError) Error() string {
	return "identity: invalid trust_proxy value " + strconv.Quote(e.Value) + ", want \"false\", \"true\", or a positive integer"
}
