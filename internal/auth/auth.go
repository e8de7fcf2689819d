package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultEnvFiles are loaded, in order, before reading the environment.
// Variables already set in the process environment win.
var DefaultEnvFiles = []string{".env.local", ".env"}

// Credentials holds everything the object-storage and HTTP transports need.
// It is built once at startup and passed explicitly to constructors.
type Credentials struct {
	AccountID       string `env:"R2_ACCOUNT_ID,NEXT_PUBLIC_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY" masq:"secret"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	EndpointURL     string `env:"R2_ENDPOINT_OVERRIDE"`
	CDNURL          string `env:"R2_CDN_URL,NEXT_PUBLIC_R2_CDN_URL"`
	PublicBaseURL   string `env:"R2_PUBLIC_URL,NEXT_PUBLIC_R2_PUBLIC_URL"`

	GCSBucket         string `env:"GCS_BUCKET"`
	GoogleCredentials string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	HTTPToken         string `env:"ASSETSYNC_HTTP_TOKEN" masq:"secret"`
}

// Load reads the given env files (DefaultEnvFiles when none are given),
// skipping the ones that do not exist, and maps the environment into
// Credentials.
func Load(files ...string) (*Credentials, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}

	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) > 0 {
		if err := godotenv.Load(present...); err != nil {
			return nil, goerr.Wrap(err, "failed to load env files", goerr.V("files", present))
		}
	}

	var creds Credentials
	if err := cleanenv.ReadEnv(&creds); err != nil {
		return nil, goerr.Wrap(err, "failed to read credentials from environment")
	}
	return &creds, nil
}

// Missing returns the names of the variables required for R2 access that are
// not set. An empty result means the S3 transport can be built.
func (c *Credentials) Missing() []string {
	var missing []string
	if c.AccountID == "" && c.EndpointURL == "" {
		missing = append(missing, "R2_ACCOUNT_ID")
	}
	if c.AccessKeyID == "" {
		missing = append(missing, "R2_ACCESS_KEY_ID")
	}
	if c.SecretAccessKey == "" {
		missing = append(missing, "R2_SECRET_ACCESS_KEY")
	}
	return missing
}

// Endpoint returns the S3-compatible endpoint: the override when set,
// otherwise the account's R2 endpoint.
func (c *Credentials) Endpoint() string {
	if c.EndpointURL != "" {
		return strings.TrimRight(c.EndpointURL, "/")
	}
	if c.AccountID == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

var cdnURLPattern = regexp.MustCompile(`^https://[^\s/]+(/[^\s]*[^/\s])?$`)

// ErrNoPublicURL is returned by PublicURL when no public base can be built.
var ErrNoPublicURL = errors.New("no public URL configured for bucket")

// PublicURL returns the public HTTP URL of an object key. The CDN base wins
// when it is a valid https URL without trailing slash, then the public base,
// then the r2.dev URL of the account and bucket.
func (c *Credentials) PublicURL(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")

	if c.CDNURL != "" && cdnURLPattern.MatchString(c.CDNURL) {
		return c.CDNURL + "/" + key, nil
	}
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/") + "/" + key, nil
	}
	if c.AccountID == "" || c.Bucket == "" {
		return "", ErrNoPublicURL
	}
	return fmt.Sprintf("https://%s.r2.dev/%s/%s", c.AccountID, c.Bucket, key), nil
}

// NewHTTPClient returns an *http.Client with the given timeout. When token is
// non-empty, requests to host (host[:port], as in base_url) carry it as a
// Bearer credential. Other hosts, including redirect targets and mirrors,
// never see it, and an empty host disables the token.
func NewHTTPClient(token, host string, timeout time.Duration) *http.Client {
	client := &http.Client{Timeout: timeout}
	if token != "" && host != "" {
		client.Transport = &tokenTransport{
			token: token,
			host:  host,
			base:  http.DefaultTransport,
		}
	}
	return client
}

// tokenTransport is a custom http.RoundTripper that adds the Authorization
// header to requests for one host.
type tokenTransport struct {
	token string
	host  string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !strings.EqualFold(req.URL.Host, t.host) {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}
