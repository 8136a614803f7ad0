package pattern

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// validateJWTShape reports whether value parses as a three-segment JWT
// structure (header.payload.signature, each base64url), without verifying
// any signature — the engine only ever claims "looks like a JWT", the same
// shape-only guarantee spec §4.4's format heuristics rely on.
func validateJWTShape(value string) (bool, error) {
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(value, jwt.MapClaims{})
	return err == nil, nil
}

// validatePrivateKeyBlock checks that a PEM-looking private key block has
// base64 content between its header and footer lines.
func validatePrivateKeyBlock(value string) (bool, error) {
	lines := strings.Split(strings.TrimSpace(value), "\n")
	if len(lines) < 3 {
		return false, nil
	}
	body := strings.Join(lines[1:len(lines)-1], "")
	body = strings.TrimSpace(body)
	if body == "" {
		return false, nil
	}
	_, err := base64.StdEncoding.DecodeString(strings.TrimRight(body, "="))
	return err == nil, nil
}

// validateNotURL rejects candidate values that are themselves well-formed
// URLs, which common-format secret patterns occasionally catch as a false
// positive (e.g. a config value that is a callback URL, not a token).
func validateNotURL(value string) (bool, error) {
	u, err := url.Parse(value)
	if err != nil {
		return true, nil
	}
	return u.Scheme == "" || u.Host == "", nil
}

// validatePostgresURI checks for the minimum shape of a postgres connection
// URI: a host component after the scheme.
func validatePostgresURI(value string) (bool, error) {
	u, err := url.Parse(value)
	if err != nil {
		return false, nil
	}
	return u.Host != "", nil
}
