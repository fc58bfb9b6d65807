// Package sas issues and verifies time-limited, permission-scoped storage URLs.
//
// Grants follow the blob service shared access signature layout: the signed
// fields are joined with newlines, signed with HMAC-SHA256 under the account
// key, and appended to the resource URL as query parameters.
package sas

import (
	"crypto/hmac"
	"encoding/base64"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"translator/internal/logger"
)

const (
	// DefaultDuration is the validity window used when callers do not pick one.
	DefaultDuration = 60 * time.Minute

	// DefaultVersion is the signed storage service version.
	DefaultVersion = "2020-12-06"

	// TimeFormat is the second-precision UTC layout used for st and se.
	TimeFormat = "2006-01-02T15:04:05Z"

	protocolHTTPS     = "https"
	protocolHTTPSHTTP = "https,http"
)

// ResourceKind distinguishes container grants from blob grants.
type ResourceKind string

const (
	ResourceContainer ResourceKind = "c"
	ResourceBlob      ResourceKind = "b"
)

// Grant is one issued capability. It is immutable once returned.
type Grant struct {
	ResourcePath string
	Resource     ResourceKind
	Permissions  Permissions
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Version      string
	Protocol     string
	Signature    string

	baseURL string
}

// Query returns the grant as URL query parameters.
func (g *Grant) Query() url.Values {
	q := url.Values{}
	q.Set("sv", g.Version)
	q.Set("spr", g.Protocol)
	q.Set("st", g.IssuedAt.Format(TimeFormat))
	q.Set("se", g.ExpiresAt.Format(TimeFormat))
	q.Set("sr", string(g.Resource))
	q.Set("sp", g.Permissions.String())
	q.Set("sig", g.Signature)
	return q
}

// URL renders the full capability URL.
func (g *Grant) URL() string {
	return g.baseURL + "/" + escapePath(g.ResourcePath) + "?" + g.Query().Encode()
}

// Expired reports whether the grant is no longer usable at now.
func (g *Grant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// Allows reports whether the grant covers the given permissions.
func (g *Grant) Allows(perms Permissions) bool {
	return g.Permissions.Has(perms)
}

// Issuer mints and verifies grants for one storage account. It is safe for
// concurrent use.
type Issuer struct {
	credentials CredentialProvider
	baseURL     string
	version     string
	protocol    string
	now         func() time.Time
	log         zerolog.Logger
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithBaseURL sets the service endpoint grants are rooted at, e.g.
// "https://acct.blob.core.windows.net". Defaults to the account's public endpoint.
func WithBaseURL(baseURL string) Option {
	return func(i *Issuer) {
		i.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithClock overrides the time source used for issuance and verification.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithVersion overrides the signed service version.
func WithVersion(version string) Option {
	return func(i *Issuer) {
		i.version = version
	}
}

// WithAllowHTTP permits grants to be used over plain HTTP, as local emulators require.
func WithAllowHTTP() Option {
	return func(i *Issuer) {
		i.protocol = protocolHTTPSHTTP
	}
}

// WithLogger overrides the component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(i *Issuer) {
		i.log = log
	}
}

// NewIssuer creates an issuer. The credential is resolved once here to derive
// the default endpoint, and again on every issuance so rotated keys take effect.
func NewIssuer(credentials CredentialProvider, opts ...Option) (*Issuer, error) {
	const op = "NewIssuer"

	if credentials == nil {
		return nil, newConfigurationError(op, "credential provider is required", nil)
	}

	i := &Issuer{
		credentials: credentials,
		version:     DefaultVersion,
		protocol:    protocolHTTPS,
		now:         time.Now,
		log:         logger.WithComponent("sas"),
	}
	for _, opt := range opts {
		opt(i)
	}

	cred, err := credentials.Credential()
	if err != nil {
		return nil, err
	}
	if i.baseURL == "" {
		i.baseURL = fmt.Sprintf("https://%s.blob.core.windows.net", cred.AccountName())
	}
	if _, err := url.Parse(i.baseURL); err != nil {
		return nil, newConfigurationError(op, "invalid base URL", err)
	}
	if i.version == "" {
		return nil, newConfigurationError(op, "service version is required", nil)
	}

	return i, nil
}

// NewIssuerFromConnectionString builds an issuer from a storage connection string.
func NewIssuerFromConnectionString(connectionString string, opts ...Option) (*Issuer, error) {
	cs, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	cred, err := cs.Credential()
	if err != nil {
		return nil, err
	}
	base := []Option{WithBaseURL(cs.BlobServiceURL())}
	if strings.EqualFold(cs.Protocol, "http") || strings.HasPrefix(cs.BlobEndpoint, "http://") {
		base = append(base, WithAllowHTTP())
	}
	return NewIssuer(NewStaticCredential(cred), append(base, opts...)...)
}

// BaseURL returns the endpoint grants are rooted at.
func (i *Issuer) BaseURL() string {
	return i.baseURL
}

// maxDurationMinutes is the longest window a time.Duration can hold.
const maxDurationMinutes = math.MaxInt64 / int64(time.Minute)

// IssueURL mints a URL granting perms on resourcePath for durationMinutes
// minutes starting now.
func (i *Issuer) IssueURL(resourcePath string, perms Permissions, durationMinutes int) (string, error) {
	if int64(durationMinutes) > maxDurationMinutes {
		return "", NewValidationError("duration", durationMinutes, ErrInvalidDuration, "duration exceeds the longest supported window")
	}
	grant, err := i.Issue(resourcePath, perms, time.Duration(durationMinutes)*time.Minute)
	if err != nil {
		return "", err
	}
	return grant.URL(), nil
}

// Issue mints a grant. A resource path without a slash names a container;
// anything deeper names a blob.
func (i *Issuer) Issue(resourcePath string, perms Permissions, duration time.Duration) (*Grant, error) {
	path := normalizePath(resourcePath)
	if path == "" {
		return nil, NewValidationError("resource_path", resourcePath, ErrEmptyResource, "resource path must not be empty")
	}
	if !perms.Valid() {
		return nil, NewValidationError("permissions", perms, ErrInvalidPermission, "permission set must be non-empty and use known permissions")
	}
	if duration <= 0 {
		return nil, NewValidationError("duration", duration, ErrInvalidDuration, "duration must be positive")
	}

	cred, err := i.credentials.Credential()
	if err != nil {
		return nil, err
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(duration).Truncate(time.Second)
	if !expiresAt.After(issuedAt) {
		return nil, NewValidationError("duration", duration, ErrInvalidDuration, "duration must be at least one second")
	}

	grant := &Grant{
		ResourcePath: path,
		Resource:     kindOf(path),
		Permissions:  perms,
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,
		Version:      i.version,
		Protocol:     i.protocol,
		baseURL:      i.baseURL,
	}
	grant.Signature = cred.Sign(serviceStringToSign(cred.AccountName(), grant))

	i.log.Debug().
		Str("resource", path).
		Str("permissions", perms.String()).
		Time("expires_at", expiresAt).
		Msg("Issued scoped access URL")

	return grant, nil
}

// IssueAccount mints account-level query parameters for blob service
// operations that a resource grant cannot authorize, such as creating a container.
func (i *Issuer) IssueAccount(perms Permissions, duration time.Duration) (url.Values, error) {
	if !perms.Valid() {
		return nil, NewValidationError("permissions", perms, ErrInvalidPermission, "permission set must be non-empty and use known permissions")
	}
	if duration <= 0 {
		return nil, NewValidationError("duration", duration, ErrInvalidDuration, "duration must be positive")
	}

	cred, err := i.credentials.Credential()
	if err != nil {
		return nil, err
	}

	start := i.now().UTC().Truncate(time.Second)
	expiry := start.Add(duration).Truncate(time.Second)
	const services, resourceTypes = "b", "sco"

	stringToSign := strings.Join([]string{
		cred.AccountName(),
		perms.String(),
		services,
		resourceTypes,
		start.Format(TimeFormat),
		expiry.Format(TimeFormat),
		"", // signed IP
		i.protocol,
		i.version,
		"", // encryption scope
	}, "\n") + "\n"

	q := url.Values{}
	q.Set("sv", i.version)
	q.Set("ss", services)
	q.Set("srt", resourceTypes)
	q.Set("sp", perms.String())
	q.Set("st", start.Format(TimeFormat))
	q.Set("se", expiry.Format(TimeFormat))
	q.Set("spr", i.protocol)
	q.Set("sig", cred.Sign(stringToSign))
	return q, nil
}

// Verify checks that rawURL carries a grant signed by this issuer's
// credential and that it is usable now.
func (i *Issuer) Verify(rawURL string) (*Grant, error) {
	grant, err := i.parse(rawURL)
	if err != nil {
		return nil, err
	}

	cred, err := i.credentials.Credential()
	if err != nil {
		return nil, err
	}

	expected, err := base64.StdEncoding.DecodeString(cred.Sign(serviceStringToSign(cred.AccountName(), grant)))
	if err != nil {
		return nil, err
	}
	actual, err := base64.StdEncoding.DecodeString(grant.Signature)
	if err != nil || !hmac.Equal(expected, actual) {
		return nil, ErrSignatureMismatch
	}

	now := i.now().UTC()
	if now.Before(grant.IssuedAt) {
		return nil, ErrNotYetValid
	}
	if grant.Expired(now) {
		return nil, ErrExpired
	}
	return grant, nil
}

func (i *Issuer) parse(rawURL string) (*Grant, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	base, err := url.Parse(i.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if !strings.EqualFold(u.Host, base.Host) {
		return nil, ErrSignatureMismatch
	}

	rel := strings.TrimPrefix(u.Path, strings.TrimRight(base.Path, "/"))
	path := normalizePath(rel)
	if path == "" {
		return nil, fmt.Errorf("%w: missing resource path", ErrMalformedURL)
	}

	q := u.Query()
	for _, key := range []string{"sv", "st", "se", "sr", "sp", "sig"} {
		if q.Get(key) == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedURL, key)
		}
	}

	perms, err := ParsePermissions(q.Get("sp"))
	if err != nil {
		return nil, ErrSignatureMismatch
	}
	issuedAt, err := time.Parse(TimeFormat, q.Get("st"))
	if err != nil {
		return nil, fmt.Errorf("%w: bad st", ErrMalformedURL)
	}
	expiresAt, err := time.Parse(TimeFormat, q.Get("se"))
	if err != nil {
		return nil, fmt.Errorf("%w: bad se", ErrMalformedURL)
	}

	return &Grant{
		ResourcePath: path,
		Resource:     ResourceKind(q.Get("sr")),
		Permissions:  perms,
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,
		Version:      q.Get("sv"),
		Protocol:     q.Get("spr"),
		Signature:    q.Get("sig"),
		baseURL:      i.baseURL,
	}, nil
}

// serviceStringToSign lays out the signed fields in the order the blob
// service expects for versions 2020-12-06 and later.
func serviceStringToSign(account string, g *Grant) string {
	return strings.Join([]string{
		g.Permissions.String(),
		g.IssuedAt.Format(TimeFormat),
		g.ExpiresAt.Format(TimeFormat),
		"/blob/" + account + "/" + g.ResourcePath,
		"", // signed identifier
		"", // signed IP
		g.Protocol,
		g.Version,
		string(g.Resource),
		"", // snapshot time
		"", // encryption scope
		"", // rscc
		"", // rscd
		"", // rsce
		"", // rscl
		"", // rsct
	}, "\n")
}

func normalizePath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

func kindOf(path string) ResourceKind {
	if strings.Contains(path, "/") {
		return ResourceBlob
	}
	return ResourceContainer
}

func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for idx, s := range segments {
		segments[idx] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
