package custody

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const minLinkTokenBytes = 16

// TokenGenerator produces opaque link tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

type randomTokens struct {
	size int
}

// NewTokenGenerator returns a generator of url-safe tokens carrying size
// random bytes. Sizes under 16 bytes are raised to 16.
func NewTokenGenerator(size int) TokenGenerator {
	if size < minLinkTokenBytes {
		size = minLinkTokenBytes
	}
	return randomTokens{size: size}
}

func (g randomTokens) NewToken() (string, error) {
	buf := make([]byte, g.size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate link token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ShareURL joins the public signing page with a link token.
func ShareURL(baseURL, token string) string {
	if baseURL == "" {
		return token
	}
	return strings.TrimRight(baseURL, "/") + "/" + token
}
