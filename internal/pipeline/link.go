package pipeline

import (
	"fmt"
	"net/url"
	"strings"
)

var acceptedHosts = map[string]struct{}{
	"youtube.com":       {},
	"www.youtube.com":   {},
	"m.youtube.com":     {},
	"music.youtube.com": {},
	"youtu.be":          {},
	"www.youtu.be":      {},
}

// NormalizeLink percent-decodes the raw link and validates it against the
// accepted video hosts. It is the only check with no network cost and must run
// before any stage touches the network.
func NormalizeLink(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty link", ErrInvalidLink)
	}

	if decoded, err := url.QueryUnescape(trimmed); err == nil {
		trimmed = decoded
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLink, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if _, ok := acceptedHosts[host]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidLink, host)
	}

	return parsed.String(), nil
}
