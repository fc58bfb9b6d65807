package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey     = base64.StdEncoding.EncodeToString([]byte("not-a-real-account-key-0123456789"))
	testAccount = "docstore"
	testInstant = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestIssuer(t *testing.T, clock *testClock, opts ...Option) *Issuer {
	t.Helper()
	cred, err := NewSharedKeyCredential(testAccount, testKey)
	require.NoError(t, err)
	base := []Option{WithClock(clock.Now), WithLogger(zerolog.Nop())}
	issuer, err := NewIssuer(NewStaticCredential(cred), append(base, opts...)...)
	require.NoError(t, err)
	return issuer
}

func mustQuery(t *testing.T, rawURL string) (*url.URL, url.Values) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u, u.Query()
}

func TestIssueURLReadOnlyForOneHour(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	raw, err := issuer.IssueURL("docs/report.pdf", Read, 60)
	require.NoError(t, err)

	u, q := mustQuery(t, raw)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "docstore.blob.core.windows.net", u.Host)
	assert.Equal(t, "/docs/report.pdf", u.Path)
	assert.Equal(t, "r", q.Get("sp"))
	assert.Equal(t, "b", q.Get("sr"))
	assert.Equal(t, "2025-03-14T09:26:53Z", q.Get("st"))
	assert.Equal(t, "2025-03-14T10:26:53Z", q.Get("se"))
	assert.NotEmpty(t, q.Get("sig"))
}

func TestIssueExpiryIsIssuedAtPlusDuration(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	for _, d := range []time.Duration{time.Minute, 15 * time.Minute, DefaultDuration, 24 * time.Hour} {
		grant, err := issuer.Issue("translated/out.docx", Read|Write, d)
		require.NoError(t, err)
		assert.Equal(t, testInstant, grant.IssuedAt)
		assert.Equal(t, testInstant.Add(d), grant.ExpiresAt)
	}
}

func TestIssueSignatureMatchesServiceLayout(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	grant, err := issuer.Issue("docs/report.pdf", Read, time.Hour)
	require.NoError(t, err)

	stringToSign := strings.Join([]string{
		"r",
		"2025-03-14T09:26:53Z",
		"2025-03-14T10:26:53Z",
		"/blob/docstore/docs/report.pdf",
		"", "",
		"https",
		DefaultVersion,
		"b",
		"", "", "", "", "", "", "",
	}, "\n")
	key, _ := base64.StdEncoding.DecodeString(testKey)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(stringToSign))

	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), grant.Signature)
}

func TestIssueContainerPathUsesContainerResource(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	raw, err := issuer.IssueURL("/translated/", MustParsePermissions("racwdl"), 60)
	require.NoError(t, err)

	u, q := mustQuery(t, raw)
	assert.Equal(t, "/translated", u.Path)
	assert.Equal(t, "c", q.Get("sr"))
	assert.Equal(t, "racwdl", q.Get("sp"))
}

func TestIssueAtDifferentInstantsDiffers(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	first, err := issuer.Issue("docs/report.pdf", Read, time.Hour)
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := issuer.Issue("docs/report.pdf", Read, time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, first.Signature, second.Signature)
	assert.NotEqual(t, first.URL(), second.URL())
}

func TestIssueIsDeterministicForSameInputs(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	a, err := issuer.IssueURL("docs/report.pdf", Read, 60)
	require.NoError(t, err)
	b, err := issuer.IssueURL("docs/report.pdf", Read, 60)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestIssueEscapesBlobNames(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	raw, err := issuer.IssueURL("docs/quarterly report #2.pdf", Read, 5)
	require.NoError(t, err)
	assert.Contains(t, raw, "/docs/quarterly%20report%20%232.pdf?")

	grant, err := issuer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "docs/quarterly report #2.pdf", grant.ResourcePath)
}

func TestIssueValidation(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	tests := []struct {
		name     string
		path     string
		perms    Permissions
		duration time.Duration
		want     error
	}{
		{"empty path", "", Read, time.Hour, ErrEmptyResource},
		{"slash only", "///", Read, time.Hour, ErrEmptyResource},
		{"no permissions", "docs/a.pdf", 0, time.Hour, ErrInvalidPermission},
		{"unknown permission bit", "docs/a.pdf", Permissions(1 << 7), time.Hour, ErrInvalidPermission},
		{"zero duration", "docs/a.pdf", Read, 0, ErrInvalidDuration},
		{"negative duration", "docs/a.pdf", Read, -time.Minute, ErrInvalidDuration},
		{"sub-second duration", "docs/a.pdf", Read, 10 * time.Millisecond, ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Issue(tt.path, tt.perms, tt.duration)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var vErr *ValidationError
			assert.True(t, errors.As(err, &vErr))
		})
	}
}

func TestIssueURLRejectsNonPositiveMinutes(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	_, err := issuer.IssueURL("docs/a.pdf", Read, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestIssueURLRejectsOverlongMinutes(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	// Would wrap to a negative or tiny duration when multiplied by time.Minute.
	for _, minutes := range []int{int(maxDurationMinutes) + 1, math.MaxInt / 1000, math.MaxInt} {
		_, err := issuer.IssueURL("docs/a.pdf", Read, minutes)
		assert.ErrorIs(t, err, ErrInvalidDuration, "minutes %d", minutes)
	}

	raw, err := issuer.IssueURL("docs/a.pdf", Read, 365*24*60)
	require.NoError(t, err)
	_, q := mustQuery(t, raw)
	assert.Equal(t, "2026-03-14T09:26:53Z", q.Get("se"))
}

func TestVerifyAcceptsFreshGrant(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	raw, err := issuer.IssueURL("docs/report.pdf", Read|List, 60)
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	grant, err := issuer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "docs/report.pdf", grant.ResourcePath)
	assert.True(t, grant.Allows(Read))
	assert.False(t, grant.Allows(Write))
}

func TestVerifyRejectsExpiredGrant(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	raw, err := issuer.IssueURL("docs/report.pdf", Read, 60)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsTampering(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	raw, err := issuer.IssueURL("docs/report.pdf", Read, 60)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(u *url.URL)
	}{
		{"path", func(u *url.URL) { u.Path = "/docs/other.pdf" }},
		{"permissions", func(u *url.URL) { setQuery(u, "sp", "rw") }},
		{"expiry", func(u *url.URL) { setQuery(u, "se", "2030-01-01T00:00:00Z") }},
		{"resource kind", func(u *url.URL) { setQuery(u, "sr", "c") }},
		{"protocol", func(u *url.URL) { setQuery(u, "spr", "https,http") }},
		{"signature", func(u *url.URL) { setQuery(u, "sig", base64.StdEncoding.EncodeToString([]byte("forged"))) }},
		{"host", func(u *url.URL) { u.Host = "attacker.blob.core.windows.net" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(raw)
			require.NoError(t, err)
			tt.mutate(u)

			_, err = issuer.Verify(u.String())
			assert.ErrorIs(t, err, ErrSignatureMismatch)
		})
	}
}

func TestVerifyRejectsOtherAccountKey(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	otherKey := base64.StdEncoding.EncodeToString([]byte("a-different-key"))
	otherCred, err := NewSharedKeyCredential(testAccount, otherKey)
	require.NoError(t, err)
	other, err := NewIssuer(NewStaticCredential(otherCred), WithClock(clock.Now), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	raw, err := other.IssueURL("docs/report.pdf", Read, 60)
	require.NoError(t, err)

	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifyRejectsIncompleteURL(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	_, err := issuer.Verify("https://docstore.blob.core.windows.net/docs/report.pdf?sp=r")
	assert.ErrorIs(t, err, ErrMalformedURL)
}

func TestVerifyRejectsGrantBeforeStart(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	raw, err := issuer.IssueURL("docs/report.pdf", Read, 60)
	require.NoError(t, err)

	clock.Advance(-time.Minute)
	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrNotYetValid)
}

func TestIssuerWithCustomBaseURL(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock, WithBaseURL("http://127.0.0.1:10000/devstoreaccount1/"), WithAllowHTTP())

	raw, err := issuer.IssueURL("source/a.pdf", Read, 10)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://127.0.0.1:10000/devstoreaccount1/source/a.pdf?"))

	_, q := mustQuery(t, raw)
	assert.Equal(t, "https,http", q.Get("spr"))

	grant, err := issuer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "source/a.pdf", grant.ResourcePath)
}

func TestIssueAccount(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	q, err := issuer.IssueAccount(Read|Write|Create|List, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "b", q.Get("ss"))
	assert.Equal(t, "sco", q.Get("srt"))
	assert.Equal(t, "rcwl", q.Get("sp"))
	assert.Equal(t, "2025-03-14T10:26:53Z", q.Get("se"))
	assert.NotEmpty(t, q.Get("sig"))

	_, err = issuer.IssueAccount(0, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidPermission)
}

func TestNewIssuerRequiresCredential(t *testing.T) {
	_, err := NewIssuer(nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewIssuer(NewStaticCredential(nil))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewIssuerFromConnectionString(t *testing.T) {
	cs := "DefaultEndpointsProtocol=https;AccountName=docstore;AccountKey=" + testKey + ";EndpointSuffix=core.windows.net"
	issuer, err := NewIssuerFromConnectionString(cs, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, "https://docstore.blob.core.windows.net", issuer.BaseURL())

	_, err = NewIssuerFromConnectionString("AccountName=docstore")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestConcurrentIssuance(t *testing.T) {
	clock := &testClock{now: testInstant}
	issuer := newTestIssuer(t, clock)

	var wg sync.WaitGroup
	urls := make([]string, 16)
	for n := range urls {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			raw, err := issuer.IssueURL("docs/report.pdf", Read, 60)
			assert.NoError(t, err)
			urls[n] = raw
		}(n)
	}
	wg.Wait()

	for _, raw := range urls {
		assert.Equal(t, urls[0], raw)
	}
}

func setQuery(u *url.URL, key, value string) {
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
}
