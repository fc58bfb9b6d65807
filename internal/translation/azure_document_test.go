package translation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"translator/internal/poller"
	"translator/internal/rest"
	"translator/internal/sas"
)

func testIssuer(t *testing.T) *sas.Issuer {
	t.Helper()
	cred, err := sas.NewSharedKeyCredential("docstore", base64.StdEncoding.EncodeToString([]byte("translation-test-key")))
	require.NoError(t, err)
	issuer, err := sas.NewIssuer(sas.NewStaticCredential(cred), sas.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return issuer
}

// fakeDocumentService plays the batch endpoint: it records the submitted body
// and answers status reads from a script.
type fakeDocumentService struct {
	mu        sync.Mutex
	submitted map[string]interface{}
	headers   http.Header
	statuses  []fakeStatus
	reads     int
}

type fakeStatus struct {
	code int
	body string
}

func (f *fakeDocumentService) handler(t *testing.T, serverURL func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/translator/document/batches":
			assert.Equal(t, DefaultAzureDocumentAPIVersion, r.URL.Query().Get("api-version"))
			f.headers = r.Header.Clone()
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.submitted))
			w.Header().Set("Operation-Location", serverURL()+"/translator/document/batches/batch-1?api-version="+DefaultAzureDocumentAPIVersion)
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && r.URL.Path == "/translator/document/batches/batch-1":
			if f.reads >= len(f.statuses) {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			s := f.statuses[f.reads]
			f.reads++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(s.code)
			_, _ = w.Write([]byte(s.body))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newAzureDocumentFixture(t *testing.T, statuses ...fakeStatus) (*AzureDocumentTranslator, *fakeDocumentService, *sas.Issuer) {
	t.Helper()

	fake := &fakeDocumentService{statuses: statuses}
	var server *httptest.Server
	server = httptest.NewServer(fake.handler(t, func() string { return server.URL }))
	t.Cleanup(server.Close)

	issuer := testIssuer(t)
	translator, err := NewAzureDocumentTranslator(AzureDocumentConfig{
		Endpoint:   server.URL,
		Key:        "translator-key",
		Region:     "westeurope",
		HTTPClient: server.Client(),
	}, issuer)
	require.NoError(t, err)
	translator.log = zerolog.Nop()
	return translator, fake, issuer
}

func TestAzureDocumentSubmitFolderJob(t *testing.T) {
	translator, fake, issuer := newAzureDocumentFixture(t)

	operationID, err := translator.Submit(context.Background(), JobRequest{
		SourceContainer: "source-documents",
		SourceName:      "report-20250717175143-fr.pdf",
		TargetContainer: "translated-documents",
		TargetLanguage:  "fr",
	})
	require.NoError(t, err)
	assert.Contains(t, operationID, "/translator/document/batches/batch-1")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "translator-key", fake.headers.Get("Ocp-Apim-Subscription-Key"))
	assert.Equal(t, "westeurope", fake.headers.Get("Ocp-Apim-Subscription-Region"))

	inputs := fake.submitted["inputs"].([]interface{})
	require.Len(t, inputs, 1)
	input := inputs[0].(map[string]interface{})
	assert.Equal(t, "Folder", input["storageType"])

	source := input["source"].(map[string]interface{})
	assert.Equal(t, "AzureBlob", source["storageSource"])
	assert.Equal(t, map[string]interface{}{"prefix": "report-20250717175143-fr.pdf"}, source["filter"])
	assert.NotContains(t, source, "language")

	sourceGrant, err := issuer.Verify(source["sourceUrl"].(string))
	require.NoError(t, err)
	assert.Equal(t, "source-documents", sourceGrant.ResourcePath)
	assert.Equal(t, "rl", sourceGrant.Permissions.String())

	target := input["targets"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "fr", target["language"])
	targetGrant, err := issuer.Verify(target["targetUrl"].(string))
	require.NoError(t, err)
	assert.Equal(t, "translated-documents", targetGrant.ResourcePath)
	assert.Equal(t, "wl", targetGrant.Permissions.String())
}

func TestAzureDocumentSubmitFileJob(t *testing.T) {
	translator, fake, issuer := newAzureDocumentFixture(t)

	_, err := translator.Submit(context.Background(), JobRequest{
		SourceContainer: "source-documents",
		SourceName:      "a.docx",
		TargetContainer: "translated-documents",
		SourceLanguage:  "en",
		TargetLanguage:  "de",
		StorageType:     StorageFile,
		GlossaryURL:     "https://docstore.blob.core.windows.net/glossaries/terms.tsv",
	})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	input := fake.submitted["inputs"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "File", input["storageType"])

	source := input["source"].(map[string]interface{})
	assert.Equal(t, "en", source["language"])
	grant, err := issuer.Verify(source["sourceUrl"].(string))
	require.NoError(t, err)
	assert.Equal(t, "source-documents/a.docx", grant.ResourcePath)
	assert.Equal(t, "r", grant.Permissions.String())

	target := input["targets"].([]interface{})[0].(map[string]interface{})
	glossaries := target["glossaries"].([]interface{})
	assert.Equal(t, "TSV", glossaries[0].(map[string]interface{})["format"])
}

func TestAzureDocumentSubmitRejectsInvalidRequest(t *testing.T) {
	translator, _, _ := newAzureDocumentFixture(t)

	_, err := translator.Submit(context.Background(), JobRequest{SourceContainer: "source-documents", TargetContainer: "translated-documents"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAzureDocumentStatusMapping(t *testing.T) {
	translator, _, _ := newAzureDocumentFixture(t,
		fakeStatus{http.StatusOK, `{"id":"batch-1","status":"Running","summary":{"total":1,"inProgress":1}}`},
		fakeStatus{http.StatusOK, `{"id":"batch-1","status":"Failed","error":{"code":"InvalidRequest","message":"Cannot access source document location.","innerError":{"code":"InvalidDocumentAccessLevel","message":"Source has insufficient permissions"}}}`},
	)

	ctx := context.Background()
	operationID, err := translator.Submit(ctx, JobRequest{SourceContainer: "source-documents", TargetContainer: "translated-documents", TargetLanguage: "fr"})
	require.NoError(t, err)

	op, err := translator.Status(ctx, operationID)
	require.NoError(t, err)
	assert.Equal(t, poller.StatusRunning, op.Status)
	assert.Equal(t, operationID, op.ID)
	assert.JSONEq(t, `{"id":"batch-1","status":"Running","summary":{"total":1,"inProgress":1}}`, string(op.Payload))

	op, err = translator.Status(ctx, operationID)
	require.NoError(t, err)
	assert.Equal(t, poller.StatusFailed, op.Status)
	assert.Equal(t, "Cannot access source document location. (Source has insufficient permissions)", op.Error)
}

func TestAzureDocumentStatusServerErrorIsTransient(t *testing.T) {
	translator, _, _ := newAzureDocumentFixture(t,
		fakeStatus{http.StatusServiceUnavailable, `{"error":{"code":"ServiceUnavailable","message":"try again"}}`},
	)

	ctx := context.Background()
	operationID, err := translator.Submit(ctx, JobRequest{SourceContainer: "source-documents", TargetContainer: "translated-documents", TargetLanguage: "fr"})
	require.NoError(t, err)

	_, err = translator.Status(ctx, operationID)
	require.Error(t, err)
	assert.True(t, poller.IsTransient(err))

	var apiErr *rest.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "ServiceUnavailable", apiErr.Code)
}

func TestAzureDocumentStatusRefusesForeignOperation(t *testing.T) {
	translator, _, _ := newAzureDocumentFixture(t)

	_, err := translator.Status(context.Background(), "https://attacker.example.com/translator/document/batches/1")
	assert.ErrorIs(t, err, ErrForeignOperation)

	_, err = translator.Status(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingOperationID)
}

func TestAzureDocumentPollsToCompletion(t *testing.T) {
	translator, _, _ := newAzureDocumentFixture(t,
		fakeStatus{http.StatusOK, `{"status":"NotStarted"}`},
		fakeStatus{http.StatusTooManyRequests, `{"error":{"code":"429","message":"slow down"}}`},
		fakeStatus{http.StatusOK, `{"status":"Running"}`},
		fakeStatus{http.StatusOK, `{"status":"Succeeded","summary":{"total":1,"success":1}}`},
	)

	ctx := context.Background()
	operationID, err := translator.Submit(ctx, JobRequest{SourceContainer: "source-documents", TargetContainer: "translated-documents", TargetLanguage: "fr"})
	require.NoError(t, err)

	op, err := poller.WaitForCompletion(ctx, func(ctx context.Context) (*poller.Operation, error) {
		return translator.Status(ctx, operationID)
	},
		poller.WithInterval(time.Millisecond),
		poller.WithMaxWait(5*time.Second),
		poller.WithFailureStatuses(translator.FailureStatuses()...),
		poller.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	assert.Equal(t, poller.StatusSucceeded, op.Status)
}

func TestAzureDocumentValidationFailedEndsPolling(t *testing.T) {
	translator, fake, _ := newAzureDocumentFixture(t,
		fakeStatus{http.StatusOK, `{"status":"ValidationFailed","error":{"message":"Target language is not supported"}}`},
		fakeStatus{http.StatusOK, `{"status":"Running"}`},
	)

	ctx := context.Background()
	operationID, err := translator.Submit(ctx, JobRequest{SourceContainer: "source-documents", TargetContainer: "translated-documents", TargetLanguage: "fr"})
	require.NoError(t, err)

	_, err = poller.WaitForCompletion(ctx, func(ctx context.Context) (*poller.Operation, error) {
		return translator.Status(ctx, operationID)
	},
		poller.WithInterval(time.Millisecond),
		poller.WithMaxWait(5*time.Second),
		poller.WithFailureStatuses(translator.FailureStatuses()...),
		poller.WithLogger(zerolog.Nop()),
	)
	require.ErrorIs(t, err, poller.ErrJobFailed)
	assert.Contains(t, err.Error(), "Target language is not supported")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.reads)
}

func TestNewAzureDocumentTranslatorValidation(t *testing.T) {
	_, err := NewAzureDocumentTranslator(AzureDocumentConfig{}, testIssuer(t))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewAzureDocumentTranslator(AzureDocumentConfig{Endpoint: "https://x.example.com", Key: "k"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewAzureDocumentTranslator(AzureDocumentConfig{Endpoint: "not a url", Key: "k"}, testIssuer(t))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
