package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"translator/internal/logger"
	"translator/internal/sas"
)

const (
	azureServiceVersion = "2020-12-06"
	// Signed URLs used for a single storage call only need to outlive the call.
	requestGrantDuration = 15 * time.Minute
)

// AzureBlobStore implements ObjectStore against the Azure Blob REST API.
// Every call is authorized with a short-lived scoped access URL from the issuer.
type AzureBlobStore struct {
	issuer *sas.Issuer
	client *http.Client
	log    zerolog.Logger
}

// NewAzureBlobStore creates a blob store that signs requests with issuer.
func NewAzureBlobStore(issuer *sas.Issuer, client *http.Client) (*AzureBlobStore, error) {
	if issuer == nil {
		return nil, fmt.Errorf("storage: issuer is required: %w", sas.ErrConfiguration)
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &AzureBlobStore{
		issuer: issuer,
		client: client,
		log:    logger.WithComponent("azure-blob"),
	}, nil
}

// PresignGet implements Presigner with a read-only scoped access URL.
func (s *AzureBlobStore) PresignGet(ctx context.Context, container, name string, expiry time.Duration) (string, error) {
	if err := validateObject(container, name); err != nil {
		return "", err
	}
	minutes := int(expiry / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	signed, err := s.issuer.IssueURL(container+"/"+name, sas.Read, minutes)
	if err != nil {
		return "", &StorageError{Op: "presign", Container: container, Name: name, Err: err}
	}
	return signed, nil
}

// Put implements ObjectStore.
func (s *AzureBlobStore) Put(ctx context.Context, container, name string, data io.Reader, size int64, contentType string) error {
	const op = "put"

	if err := validateObject(container, name); err != nil {
		return err
	}

	signed, err := s.issuer.IssueURL(container+"/"+name, sas.Create|sas.Write, int(requestGrantDuration/time.Minute))
	if err != nil {
		return &StorageError{Op: op, Container: container, Name: name, Err: err}
	}

	if size < 0 {
		buf, err := io.ReadAll(data)
		if err != nil {
			return &StorageError{Op: op, Container: container, Name: name, Err: err}
		}
		data = bytes.NewReader(buf)
		size = int64(len(buf))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signed, data)
	if err != nil {
		return &StorageError{Op: op, Container: container, Name: name, Err: err}
	}
	req.ContentLength = size
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	req.Header.Set("x-ms-version", azureServiceVersion)
	if contentType != "" {
		req.Header.Set("x-ms-blob-content-type", contentType)
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &StorageError{Op: op, Container: container, Name: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return s.statusError(op, container, name, resp)
	}

	s.log.Debug().
		Str("container", container).
		Str("blob", name).
		Int64("size", size).
		Msg("Blob uploaded")
	return nil
}

// Get implements ObjectStore.
func (s *AzureBlobStore) Get(ctx context.Context, container, name string) ([]byte, error) {
	const op = "get"

	resp, err := s.blobRequest(ctx, http.MethodGet, container, name)
	if err != nil {
		return nil, &StorageError{Op: op, Container: container, Name: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.statusError(op, container, name, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &StorageError{Op: op, Container: container, Name: name, Err: err}
	}
	return data, nil
}

// Exists implements ObjectStore.
func (s *AzureBlobStore) Exists(ctx context.Context, container, name string) (bool, error) {
	const op = "head"

	resp, err := s.blobRequest(ctx, http.MethodHead, container, name)
	if err != nil {
		return false, &StorageError{Op: op, Container: container, Name: name, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, s.statusError(op, container, name, resp)
	}
}

// EnsureContainer implements ObjectStore. An existing container is not an error.
func (s *AzureBlobStore) EnsureContainer(ctx context.Context, container string) error {
	const op = "create-container"

	if err := ValidateContainerName(container); err != nil {
		return err
	}

	query, err := s.issuer.IssueAccount(sas.Read|sas.Create|sas.Write|sas.List, requestGrantDuration)
	if err != nil {
		return &StorageError{Op: op, Container: container, Err: err}
	}
	query.Set("restype", "container")

	endpoint := s.issuer.BaseURL() + "/" + url.PathEscape(container) + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return &StorageError{Op: op, Container: container, Err: err}
	}
	req.Header.Set("x-ms-version", azureServiceVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return &StorageError{Op: op, Container: container, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		s.log.Info().Str("container", container).Msg("Container created")
		return nil
	case http.StatusConflict:
		return nil
	default:
		return s.statusError(op, container, "", resp)
	}
}

func (s *AzureBlobStore) blobRequest(ctx context.Context, method, container, name string) (*http.Response, error) {
	if err := validateObject(container, name); err != nil {
		return nil, err
	}
	signed, err := s.issuer.IssueURL(container+"/"+name, sas.Read, int(requestGrantDuration/time.Minute))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, signed, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-ms-version", azureServiceVersion)
	return s.client.Do(req)
}

func (s *AzureBlobStore) statusError(op, container, name string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	code := resp.Header.Get("x-ms-error-code")

	var err error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		err = ErrNotFound
	case code != "":
		err = errors.New(code)
	default:
		err = errors.New(strings.TrimSpace(string(body)))
	}
	return &StorageError{Op: op, Container: container, Name: name, StatusCode: resp.StatusCode, Err: err}
}
