package fcm

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MessagingScope is the OAuth scope granting access to the FCM send API.
const MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

// assertionLifetime is the fixed validity window of a minted assertion.
const assertionLifetime = time.Hour

// ServiceAccount mirrors a Google service-account key file.
type ServiceAccount struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
	UniverseDomain          string `json:"universe_domain"`
}

// ServiceAccountCredentials signs short-lived assertions for a service
// account. It is safe for concurrent use.
type ServiceAccountCredentials struct {
	account ServiceAccount
	key     *rsa.PrivateKey
	now     func() time.Time
}

// NewServiceAccountCredentials parses a key file and derives its RSA key.
// Any parse failure is returned; callers should refuse to serve FCM without
// valid credentials.
func NewServiceAccountCredentials(r io.Reader) (*ServiceAccountCredentials, error) {
	var account ServiceAccount
	if err := json.NewDecoder(r).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode service account: %w", err)
	}

	key, err := ParsePrivateKey([]byte(account.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("service account %q: %w", account.ClientEmail, err)
	}

	return &ServiceAccountCredentials{account: account, key: key, now: time.Now}, nil
}

// LoadServiceAccountCredentials reads a key file from disk.
func LoadServiceAccountCredentials(path string) (*ServiceAccountCredentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open service account file: %w", err)
	}
	defer f.Close()
	return NewServiceAccountCredentials(f)
}

// ParsePrivateKey decodes a PEM encoded RSA private key. The body may be
// wrapped arbitrarily, including on the same line as its armor.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(rewrapPEM(pemBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// rewrapPEM strips the armor and all whitespace from the first PEM block and
// re-encodes it with standard line breaks. Input it cannot make sense of is
// returned unchanged for the parser to reject.
func rewrapPEM(raw []byte) []byte {
	const begin = "-----BEGIN "
	s := string(raw)
	start := strings.Index(s, begin)
	if start < 0 {
		return raw
	}
	rest := s[start+len(begin):]
	labelEnd := strings.Index(rest, "-----")
	if labelEnd < 0 {
		return raw
	}
	label := rest[:labelEnd]
	body := rest[labelEnd+len("-----"):]
	end := strings.Index(body, "-----END "+label+"-----")
	if end < 0 {
		return raw
	}

	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(body[:end]), ""))
	if err != nil {
		return raw
	}
	return pem.EncodeToMemory(&pem.Block{Type: label, Bytes: der})
}

// Account returns the parsed key file.
func (c *ServiceAccountCredentials) Account() ServiceAccount { return c.account }

// CreateAssertion mints a fresh RS256 assertion for the FCM scope. Nothing is
// cached: every call gets its own iat/exp window.
func (c *ServiceAccountCredentials) CreateAssertion() (string, error) {
	iat := c.now()
	claims := jwt.MapClaims{
		"iss":   c.account.ClientEmail,
		"aud":   c.account.TokenURI,
		"iat":   iat.Unix(),
		"exp":   iat.Add(assertionLifetime).Unix(),
		"scope": MessagingScope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = c.account.PrivateKeyID

	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}
