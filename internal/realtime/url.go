package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultPath is the push endpoint path on the serving host.
const DefaultPath = "/ws"

// BuildURL derives the push endpoint from the origin the application is served
// from: https origins map to wss, http origins to ws, and the host (with port)
// is kept as is. The credential is appended as the token query parameter.
func BuildURL(origin, path, credential string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidOrigin, origin)
	}

	var scheme string
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidOrigin, u.Scheme)
	}

	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return scheme + "://" + u.Host + path + "?token=" + url.QueryEscape(credential), nil
}
