package protocol

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SDK identity reported in envelope headers, event payloads, and auth headers.
const (
	SDKName    = "faultline-go"
	SDKVersion = "0.9.0"
)

// ErrInvalidDSN is wrapped by every DSN parsing failure.
var ErrInvalidDSN = errors.New("invalid DSN")

// DSN identifies a collector endpoint and project:
// scheme://publicKey@host[:port]/path/projectID.
type DSN struct {
	scheme    string
	publicKey string
	host      string
	path      string
	projectID string
}

// ParseDSN parses and validates a DSN string.
func ParseDSN(raw string) (*DSN, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDSN, parsed.Scheme)
	}
	if parsed.User == nil || parsed.User.Username() == "" {
		return nil, fmt.Errorf("%w: missing public key", ErrInvalidDSN)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidDSN)
	}

	path := strings.TrimSuffix(parsed.Path, "/")
	idx := strings.LastIndex(path, "/")
	projectID := path[idx+1:]
	if projectID == "" {
		return nil, fmt.Errorf("%w: missing project ID", ErrInvalidDSN)
	}

	return &DSN{
		scheme:    parsed.Scheme,
		publicKey: parsed.User.Username(),
		host:      parsed.Host,
		path:      path[:idx+1],
		projectID: projectID,
	}, nil
}

// ProjectID returns the project identifier from the DSN path.
func (d *DSN) ProjectID() string {
	return d.projectID
}

// EnvelopeURL returns the ingestion endpoint for envelope submissions.
func (d *DSN) EnvelopeURL() string {
	return fmt.Sprintf("%s://%s%sapi/%s/envelope/", d.scheme, d.host, d.path, d.projectID)
}

// BaseURL returns the collector origin, used for reachability checks.
func (d *DSN) BaseURL() string {
	return fmt.Sprintf("%s://%s", d.scheme, d.host)
}

// AuthHeader returns the header name and value authenticating submissions.
func (d *DSN) AuthHeader() (string, string) {
	value := fmt.Sprintf(
		"Faultline faultline_key=%s, faultline_version=7, faultline_client=%s/%s",
		d.publicKey, SDKName, SDKVersion,
	)
	return "X-Faultline-Auth", value
}

// String reassembles the DSN without credentials hidden; it is the inverse of
// ParseDSN up to a trailing slash.
func (d *DSN) String() string {
	return fmt.Sprintf("%s://%s@%s%s%s", d.scheme, d.publicKey, d.host, d.path, d.projectID)
}
