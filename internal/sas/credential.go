package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// SharedKeyCredential is a storage account name plus its base64 account key.
type SharedKeyCredential struct {
	accountName string
	key         []byte
}

// NewSharedKeyCredential validates and decodes an account key.
func NewSharedKeyCredential(accountName, accountKey string) (*SharedKeyCredential, error) {
	const op = "NewSharedKeyCredential"

	accountName = strings.TrimSpace(accountName)
	accountKey = strings.TrimSpace(accountKey)
	if accountName == "" {
		return nil, newConfigurationError(op, "account name is required", nil)
	}
	if accountKey == "" {
		return nil, newConfigurationError(op, "account key is required", nil)
	}

	key, err := base64.StdEncoding.DecodeString(accountKey)
	if err != nil {
		return nil, newConfigurationError(op, "account key is not valid base64", err)
	}
	if len(key) == 0 {
		return nil, newConfigurationError(op, "account key decodes to zero bytes", nil)
	}

	return &SharedKeyCredential{accountName: accountName, key: key}, nil
}

// AccountName returns the storage account name.
func (c *SharedKeyCredential) AccountName() string {
	return c.accountName
}

// Sign returns base64(HMAC-SHA256(key, stringToSign)).
func (c *SharedKeyCredential) Sign(stringToSign string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// CredentialProvider supplies the signing secret. Implementations may rotate
// the credential between calls.
type CredentialProvider interface {
	Credential() (*SharedKeyCredential, error)
}

// StaticCredential serves one fixed credential.
type StaticCredential struct {
	credential *SharedKeyCredential
}

// NewStaticCredential wraps a credential as a provider.
func NewStaticCredential(credential *SharedKeyCredential) *StaticCredential {
	return &StaticCredential{credential: credential}
}

// Credential implements CredentialProvider.
func (s *StaticCredential) Credential() (*SharedKeyCredential, error) {
	if s == nil || s.credential == nil {
		return nil, newConfigurationError("Credential", "no signing credential configured", nil)
	}
	return s.credential, nil
}

// ConnectionString holds the fields of a storage connection string that
// matter for signing and addressing.
type ConnectionString struct {
	AccountName    string
	AccountKey     string
	Protocol       string
	EndpointSuffix string
	BlobEndpoint   string
}

// ParseConnectionString parses "AccountName=..;AccountKey=..;..." strings.
// Keys are matched case-insensitively.
func ParseConnectionString(connectionString string) (*ConnectionString, error) {
	const op = "ParseConnectionString"

	cs := &ConnectionString{
		Protocol:       "https",
		EndpointSuffix: "core.windows.net",
	}
	for _, part := range strings.Split(connectionString, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, newConfigurationError(op, fmt.Sprintf("malformed segment %q", redact(key)), nil)
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "accountname":
			cs.AccountName = strings.TrimSpace(value)
		case "accountkey":
			cs.AccountKey = strings.TrimSpace(value)
		case "defaultendpointsprotocol":
			cs.Protocol = strings.TrimSpace(value)
		case "endpointsuffix":
			cs.EndpointSuffix = strings.TrimSpace(value)
		case "blobendpoint":
			cs.BlobEndpoint = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}

	if cs.AccountName == "" || cs.AccountKey == "" {
		return nil, newConfigurationError(op, "connection string must contain AccountName and AccountKey", nil)
	}
	return cs, nil
}

// Credential decodes the account key into a SharedKeyCredential.
func (cs *ConnectionString) Credential() (*SharedKeyCredential, error) {
	return NewSharedKeyCredential(cs.AccountName, cs.AccountKey)
}

// BlobServiceURL returns the blob endpoint, derived from the account name when
// the connection string does not set one.
func (cs *ConnectionString) BlobServiceURL() string {
	if cs.BlobEndpoint != "" {
		return cs.BlobEndpoint
	}
	return fmt.Sprintf("%s://%s.blob.%s", cs.Protocol, cs.AccountName, cs.EndpointSuffix)
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
