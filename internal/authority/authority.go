package authority

import (
	"errors"
	"fmt"
	"net"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Authority is the host[:port] of an upstream node. It is compared by value
// and is the unit of health tracking.
type Authority string

var ErrEmpty = errors.New("authority is empty")

// Parse validates raw as host[:port]. Schemes, paths, queries, fragments and
// userinfo are rejected.
func Parse(raw string) (Authority, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}

	if strings.ContainsAny(raw, "/?#@ ") {
		return "", fmt.Errorf("invalid authority %q: must be host[:port]", raw)
	}

	host, port, err := splitHostPort(raw)
	if err != nil {
		return "", fmt.Errorf("invalid authority %q: %w", raw, err)
	}

	if err := validation.Validate(host, validation.Required, is.Host); err != nil {
		return "", fmt.Errorf("invalid authority %q: host %w", raw, err)
	}

	if port != "" {
		if err := validation.Validate(port, is.Port); err != nil {
			return "", fmt.Errorf("invalid authority %q: port %w", raw, err)
		}
	}

	return Authority(raw), nil
}

// MustParse is like Parse but panics on error.
func MustParse(raw string) Authority {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Authority) String() string {
	return string(a)
}

// Host returns the host part without brackets.
func (a Authority) Host() string {
	host, _, err := splitHostPort(string(a))
	if err != nil {
		return string(a)
	}
	return host
}

// Port returns the port part, or "" when none was given.
func (a Authority) Port() string {
	_, port, err := splitHostPort(string(a))
	if err != nil {
		return ""
	}
	return port
}

func splitHostPort(raw string) (host, port string, err error) {
	// A bare IPv6 address has colons but no brackets and no port.
	if strings.Count(raw, ":") > 1 && !strings.HasPrefix(raw, "[") {
		return raw, "", nil
	}

	if !strings.Contains(raw, ":") {
		return raw, "", nil
	}

	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		return strings.Trim(raw, "[]"), "", nil
	}

	host, port, err = net.SplitHostPort(raw)
	if err != nil {
		return "", "", err
	}

	if port == "" {
		return "", "", errors.New("port cannot be empty")
	}

	return host, port, nil
}
