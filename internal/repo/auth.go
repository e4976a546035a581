package repo

import (
	"fmt"
	"net/url"
	"strings"
)

// Credentials carry what the calling agent supplies for private remotes.
// The token may arrive in an encrypted form; a Decrypter turns it into
// plaintext before use.
type Credentials struct {
	Token string
	Login string
}

// Decrypter decrypts tokens that arrive encrypted. Decryption itself is an
// external concern; this package only requires the contract.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// PassthroughDecrypter returns tokens unchanged. It is the default when
// credentials arrive in plaintext.
type PassthroughDecrypter struct{}

// Decrypt implements Decrypter.
func (PassthroughDecrypter) Decrypt(token string) (string, error) { return token, nil }

// AuthenticatedURL injects login:token credentials into HTTP(S) URLs.
// SSH URLs pass through unmodified; their auth is key-based. An empty
// token also passes the URL through untouched.
func (m *Manager) AuthenticatedURL(gitURL string, creds Credentials) (string, error) {
	if creds.Token == "" {
		return gitURL, nil
	}
	if !strings.HasPrefix(gitURL, "http://") && !strings.HasPrefix(gitURL, "https://") {
		return gitURL, nil
	}

	token, err := m.decrypter.Decrypt(creds.Token)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt git token: %w", err)
	}

	login := creds.Login
	if login == "" {
		login = m.defaultLogin
	}

	u, err := url.Parse(gitURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, gitURL)
	}
	u.User = url.UserPassword(login, token)
	return u.String(), nil
}

// Redact replaces any userinfo in a URL with "***" for logging.
func Redact(gitURL string) string {
	u, err := url.Parse(gitURL)
	if err != nil || u.User == nil {
		return gitURL
	}
	u.User = url.User("***")
	return u.String()
}
