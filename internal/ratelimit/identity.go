package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrUnresolvableClient is returned when a request carries no verified
// identity and no usable source address.
var ErrUnresolvableClient = errors.New("unable to identify client")

type clientIPKey struct{}

type verifiedUserKey struct{}

// WithClientIP records the client address resolved by the HTTP framework, which
// knows about trusted proxies. RequestIP prefers it over the socket address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// WithVerifiedUser records the subject of a bearer token whose signature and
// expiry have already been checked. Only verified subjects may be counted
// apart from the source address.
func WithVerifiedUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, verifiedUserKey{}, userID)
}

// RequestIP returns the client address of r
func RequestIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// ClientIdentity derives the identity a request is counted under.
//
// Priority: verified token subject, then source IP. Raw X-API-Key and
// Authorization values are never used as identities: anything the client can
// mint freely would hand it a fresh window per request.
func ClientIdentity(r *http.Request) (string, error) {
	if userID, ok := r.Context().Value(verifiedUserKey{}).(string); ok && userID != "" {
		return "user:" + userID, nil
	}

	if ip := RequestIP(r); ip != "" {
		return "ip:" + ip, nil
	}

	return "", ErrUnresolvableClient
}
