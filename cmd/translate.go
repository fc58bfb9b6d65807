package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"translator/internal/artifact"
	"translator/internal/hub"
	"translator/internal/logger"
	"translator/internal/poller"
	"translator/internal/storage"
	"translator/internal/translation"
	"translator/pkg/models"
)

var translateCmd = &cobra.Command{
	Use:   "translate [document]",
	Short: "Translate a document with an asynchronous provider job",
	Long: `Upload a document to object storage, submit a document translation job and
wait for it to finish. On success a read-only download link for the translated
document is printed.

The provider is chosen by TRANSLATOR_PROVIDER:
  azure  - Azure AI Translator with Azure Blob Storage (default)
  google - Cloud Translation with Cloud Storage through its S3 interoperability API

Supported documents include PDF, Word, Excel, PowerPoint, OpenDocument, HTML,
Markdown, plain text and CSV, up to 40MB.

Required environment variables (azure):
  AZURE_STORAGE_CONNECTION_STRING - Storage account connection string
  AZURE_TRANSLATOR_ENDPOINT       - Translator resource endpoint
  AZURE_TRANSLATOR_KEY            - Translator resource key

Required environment variables (google):
  GOOGLE_CLOUD_PROJECT                 - Your Google Cloud project ID
  S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY - Cloud Storage HMAC interoperability settings`,
	Example: `  # Translate a PDF into German and wait for the download link
  translator translate report.pdf --to de

  # Submit only and keep the job file for a later status check
  translator translate report.pdf --from en --to fr --no-wait --job-file report.job.json

  # JSON output with a longer wait
  translator translate slides.pptx --to ja --json --timeout 1800`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

// TranslateOutput represents the JSON output structure of the translate command
type TranslateOutput struct {
	Document *artifact.Artifact        `json:"document"`
	Job      *models.TranslationJob    `json:"job"`
	Result   *models.TranslationResult `json:"result,omitempty"`
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().String("from", "", "Source language code (default: detect)")
	translateCmd.Flags().String("to", "", "Target language code")
	translateCmd.Flags().Bool("no-wait", false, "Submit the job and return without waiting")
	translateCmd.Flags().String("job-file", "", "Write the job handle to this file for 'translator status'")
	translateCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	translateCmd.Flags().Bool("json", false, "Output as JSON")
	translateCmd.Flags().Int("timeout", 900, "Overall timeout in seconds")
	_ = translateCmd.MarkFlagRequired("to")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("translate")

	sourceLang, _ := cmd.Flags().GetString("from")
	targetLang, _ := cmd.Flags().GetString("to")
	noWait, _ := cmd.Flags().GetBool("no-wait")
	jobFile, _ := cmd.Flags().GetString("job-file")
	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	documentPath := args[0]

	log.Info().
		Str("file", documentPath).
		Str("from", sourceLang).
		Str("to", targetLang).
		Bool("wait", !noWait).
		Int("timeout", timeoutSecs).
		Msg("Starting document translation")

	if err := translation.ValidateLanguages(sourceLang, targetLang); err != nil {
		return handleTranslationError(err, log)
	}

	document, err := openArtifact(documentPath, log)
	if err != nil {
		return err
	}
	if document.Kind != artifact.KindDocument {
		return fmt.Errorf("%s is an image; use 'translator image' to translate the text in images", document.Name)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	translationHub, err := createDocumentHub(ctx, cfg, log)
	if err != nil {
		return err
	}

	job, err := translationHub.StartJob(ctx, document, sourceLang, targetLang)
	if err != nil {
		return handleTranslationError(err, log)
	}

	if jobFile != "" {
		if err := writeJSON(job, jobFile, log); err != nil {
			return err
		}
	}

	output := TranslateOutput{Document: document, Job: job}
	if !noWait {
		startTime := time.Now()
		result, err := translationHub.AwaitJob(ctx, job, progressLogger(logger.WithOperation("translate", job.OperationID)))
		if err != nil {
			return handleTranslationError(err, log)
		}
		output.Result = result

		log.Info().
			Str("operation_id", job.OperationID).
			Dur("duration", time.Since(startTime)).
			Int("attempts", result.Attempts).
			Msg("Document translation completed successfully")
	}

	if jsonOutput {
		return writeJSON(output, outputPath, log)
	}
	return writeOutput([]byte(formatTranslateOutput(output)), outputPath, log)
}

// openArtifact reads and inspects a local file
func openArtifact(path string, log zerolog.Logger) (*artifact.Artifact, error) {
	a, err := artifact.Open(path)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", path).
			Msg("File rejected")
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("file not found: %s", path)
		case errors.Is(err, os.ErrPermission):
			return nil, fmt.Errorf("permission denied accessing file: %s", path)
		case errors.Is(err, artifact.ErrEmpty):
			return nil, fmt.Errorf("file is empty: %s", path)
		case errors.Is(err, artifact.ErrTooLarge):
			return nil, fmt.Errorf("file is too large: %w", err)
		case errors.Is(err, artifact.ErrUnsupportedType):
			return nil, fmt.Errorf("file type is not supported for translation: %w", err)
		case errors.Is(err, artifact.ErrCorrupt):
			return nil, fmt.Errorf("invalid or corrupted file. Please check the file integrity: %w", err)
		default:
			return nil, fmt.Errorf("error reading file: %w", err)
		}
	}

	log.Debug().
		Str("file", a.Name).
		Str("content_type", a.ContentType).
		Str("kind", string(a.Kind)).
		Int64("size", a.Size).
		Int("pages", a.Pages).
		Msg("File inspected")
	return a, nil
}

// progressLogger reports every status check of a poll session
func progressLogger(log zerolog.Logger) func(poller.Event) {
	return func(ev poller.Event) {
		if ev.Err != nil && !ev.Done {
			log.Warn().
				Err(ev.Err).
				Int("attempt", ev.Attempt).
				Dur("elapsed", ev.Elapsed).
				Msg("Status check failed, retrying")
			return
		}
		if ev.Operation == nil {
			return
		}
		log.Info().
			Int("attempt", ev.Attempt).
			Dur("elapsed", ev.Elapsed.Round(time.Second)).
			Str("status", string(ev.Operation.Status)).
			Msg("Translation progress")
	}
}

// handleTranslationError provides user-friendly error messages for translation failures.
// Timeouts and failed jobs both report "translation failed" but are logged apart.
func handleTranslationError(err error, log zerolog.Logger) error {
	var timeoutErr *poller.TimeoutError
	var failedErr *poller.JobFailedError

	switch {
	case errors.As(err, &failedErr):
		log.Error().
			Str("status", string(failedErr.Status)).
			Str("reason", failedErr.Message).
			Msg("Translation job failed")
		return fmt.Errorf("translation failed: %s", failedErr.Error())
	case errors.As(err, &timeoutErr):
		log.Error().
			Dur("elapsed", timeoutErr.Elapsed).
			Msg("Translation job did not finish in time")
		return fmt.Errorf("translation failed: %s. The job may still finish; check it later with 'translator status'", timeoutErr.Error())
	}

	log.Error().Err(err).Msg("Translation failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("translation timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("translation was canceled")
	case errors.Is(err, translation.ErrUnsupportedLanguage):
		return fmt.Errorf("unsupported language. Supported codes: %s", strings.Join(translation.LanguageCodes(), ", "))
	case errors.Is(err, translation.ErrInvalidRequest):
		return fmt.Errorf("invalid translation request: %w", err)
	case errors.Is(err, hub.ErrInvalidArtifact):
		return fmt.Errorf("the file cannot be translated this way: %w", err)
	case errors.Is(err, hub.ErrInvalidHandle):
		return fmt.Errorf("the job file is incomplete: %w", err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("the translated document was not found in storage: %w", err)
	case errors.Is(err, storage.ErrInvalidName):
		return fmt.Errorf("invalid container name. Check SOURCE_CONTAINER and TARGET_CONTAINER: %w", err)
	case errors.Is(err, translation.ErrForeignOperation):
		return fmt.Errorf("the operation does not belong to the configured translator endpoint: %w", err)
	case poller.IsTransient(err):
		return fmt.Errorf("the provider is temporarily unavailable, please retry later: %w", err)
	default:
		return fmt.Errorf("translation failed: %w", err)
	}
}

func formatTranslateOutput(output TranslateOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document:     %s (%s, %d bytes)\n", output.Document.Name, output.Document.ContentType, output.Document.Size)
	fmt.Fprintf(&b, "Operation:    %s\n", output.Job.OperationID)
	fmt.Fprintf(&b, "Provider:     %s\n", output.Job.Provider)
	fmt.Fprintf(&b, "Source blob:  %s/%s\n", output.Job.SourceContainer, output.Job.SourceName)
	fmt.Fprintf(&b, "Result blob:  %s/%s\n", output.Job.ResultContainer, output.Job.ResultName)
	if output.Result == nil {
		b.WriteString("Status:       submitted\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Status:       %s\n", output.Result.Status)
	writeDownload(&b, output.Result)
	return b.String()
}

func writeDownload(b *strings.Builder, result *models.TranslationResult) {
	if result.Message != "" {
		fmt.Fprintf(b, "Message:      %s\n", result.Message)
	}
	if result.DownloadURL == "" {
		return
	}
	fmt.Fprintf(b, "Download URL: %s\n", result.DownloadURL)
	if result.ExpiresAt != nil {
		fmt.Fprintf(b, "Expires at:   %s\n", result.ExpiresAt.Format(time.RFC3339))
	}
}
