package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"translator/internal/artifact"
	"translator/internal/config"
	"translator/internal/hub"
	"translator/internal/logger"
	"translator/internal/sheets"
	"translator/internal/translation"
	"translator/pkg/models"
)

var batchCmd = &cobra.Command{
	Use:   "translate-batch [folder-path]",
	Short: "Translate every document in a folder and log the results to Google Sheets",
	Long: `Translate all documents in a folder into one target language.

Each document is uploaded, submitted as its own translation job and awaited by
a pool of workers. Images and files that cannot be translated are reported and
skipped. When GOOGLE_SHEET_URL (or --sheet) is set, one row per file is appended
to the "Translations" tab of that spreadsheet, including the download link.

Required environment variables: see 'translator translate --help'.

Optional environment variables:
  GOOGLE_SHEET_URL - Google Sheets URL to log results to
  BATCH_WORKERS    - Number of parallel workers (default: 4)`,
	Example: `  # Translate a folder of contracts into German
  translator translate-batch ./contracts --to de

  # Log the results to a spreadsheet with 8 workers
  translator translate-batch ./contracts --from en --to fr --workers 8 \
    --sheet https://docs.google.com/spreadsheets/d/1AbC/edit

  # Translate without touching the spreadsheet
  translator translate-batch ./contracts --to es --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// BatchOutput represents one file in the JSON output of translate-batch
type BatchOutput struct {
	File   string                    `json:"file"`
	Status string                    `json:"status"`
	Job    *models.TranslationJob    `json:"job,omitempty"`
	Result *models.TranslationResult `json:"result,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("from", "", "Source language code (default: detect)")
	batchCmd.Flags().String("to", "", "Target language code")
	batchCmd.Flags().Int("workers", 0, "Parallel workers (default: BATCH_WORKERS)")
	batchCmd.Flags().String("sheet", "", "Google Sheets URL (default: GOOGLE_SHEET_URL)")
	batchCmd.Flags().String("sheet-name", sheets.DefaultSheetName, "Tab the result rows are appended to")
	batchCmd.Flags().Bool("dry-run", false, "Translate files but don't write to Google Sheet")
	batchCmd.Flags().StringP("output", "o", "", "Write the JSON results to this file")
	batchCmd.Flags().Int("timeout", 3600, "Overall timeout in seconds")
	_ = batchCmd.MarkFlagRequired("to")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("translate-batch")

	folderPath := args[0]
	sourceLang, _ := cmd.Flags().GetString("from")
	targetLang, _ := cmd.Flags().GetString("to")
	workers, _ := cmd.Flags().GetInt("workers")
	sheetURL, _ := cmd.Flags().GetString("sheet")
	sheetName, _ := cmd.Flags().GetString("sheet-name")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	if err := translation.ValidateLanguages(sourceLang, targetLang); err != nil {
		return handleTranslationError(err, log)
	}

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.BatchWorkers
	}
	if sheetURL == "" {
		sheetURL = cfg.GoogleSheetURL
	}

	log.Info().
		Str("folder", folderPath).
		Str("from", sourceLang).
		Str("to", targetLang).
		Int("workers", workers).
		Bool("dry_run", dryRun).
		Msg("Starting batch translation")

	files, err := findFiles(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find files: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No files found in folder.")
		return nil
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         BATCH TRANSLATION")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Folder: %s\n", folderPath)
	fmt.Printf("Target language: %s\n", translation.NormalizeLanguage(targetLang))
	if dryRun {
		fmt.Println("Mode: dry run (no Google Sheets update)")
	}
	fmt.Println()

	docs, docPaths, outputs := splitDocuments(files, log)

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	if len(docs) > 0 {
		translationHub, err := createDocumentHub(ctx, cfg, log)
		if err != nil {
			return err
		}

		fmt.Printf("Translating %d documents with %d parallel workers...\n\n", len(docs), workers)

		processed := 0
		items := translationHub.TranslateBatch(ctx, docs, sourceLang, targetLang, workers, func(item hub.BatchItem) {
			processed++
			fmt.Printf("[%d/%d] %s - %s", processed, len(docs), item.Document.Name, getStatusEmoji(item.Status))
			if item.Err != nil {
				fmt.Printf(" (%s)", item.Err.Error())
			}
			fmt.Println()
		})
		for _, item := range items {
			out := BatchOutput{
				File:   docPaths[item.Index],
				Status: item.Status,
				Job:    item.Job,
				Result: item.Result,
			}
			if item.Err != nil {
				out.Error = item.Err.Error()
			}
			outputs = append(outputs, out)
		}
		fmt.Println()
	}

	sort.Slice(outputs, func(i, j int) bool { return outputs[i].File < outputs[j].File })

	successCount := 0
	for _, out := range outputs {
		if out.Status == hub.BatchSucceeded {
			successCount++
		}
	}
	errorCount := len(outputs) - successCount

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 SUMMARY")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Translated: %d\n", successCount)
	if errorCount > 0 {
		fmt.Printf("Failed: %d\n", errorCount)
	}
	fmt.Println()

	if outputPath != "" {
		if err := writeJSON(outputs, outputPath, log); err != nil {
			return err
		}
	}

	if !dryRun {
		if err := recordBatch(ctx, cfg, sheetURL, sheetName, outputs, log); err != nil {
			return err
		}
	}

	fmt.Println(strings.Repeat("=", 80))

	log.Info().
		Int("total", len(outputs)).
		Int("success", successCount).
		Int("errors", errorCount).
		Msg("Batch translation completed")

	if errorCount > 0 {
		return fmt.Errorf("%d of %d files were not translated", errorCount, len(outputs))
	}
	return nil
}

// findFiles lists the regular, non-hidden files below folderPath
func findFiles(folderPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != folderPath && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() && !strings.HasPrefix(info.Name(), ".") {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// splitDocuments opens every file and separates translatable documents from
// files that are reported as failed without being submitted.
func splitDocuments(files []string, log zerolog.Logger) ([]*artifact.Artifact, []string, []BatchOutput) {
	var (
		docs     []*artifact.Artifact
		paths    []string
		rejected []BatchOutput
	)
	for _, path := range files {
		a, err := artifact.Open(path)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("file", path).Msg("File rejected")
			rejected = append(rejected, BatchOutput{File: path, Status: hub.BatchFailed, Error: err.Error()})
		case a.Kind != artifact.KindDocument:
			log.Warn().Str("file", path).Str("content_type", a.ContentType).Msg("Skipping image in document batch")
			rejected = append(rejected, BatchOutput{
				File:   path,
				Status: hub.BatchFailed,
				Error:  "images are translated with 'translator image'",
			})
		default:
			docs = append(docs, a)
			paths = append(paths, path)
		}
	}
	for _, r := range rejected {
		fmt.Printf("%s - %s (%s)\n", filepath.Base(r.File), getStatusEmoji(r.Status), r.Error)
	}
	return docs, paths, rejected
}

// recordBatch appends one row per file to the results spreadsheet
func recordBatch(ctx context.Context, cfg *config.Config, sheetURL, sheetName string, outputs []BatchOutput, log zerolog.Logger) error {
	if sheetURL == "" {
		log.Debug().Msg("No Google Sheet configured, results are not recorded")
		return nil
	}

	fmt.Println("Writing results to Google Sheet...")

	creds, err := cfg.GoogleCredentials()
	if err != nil {
		return fmt.Errorf("failed to load Google credentials: %w", err)
	}
	sheetsService, err := sheets.NewSheetsService(ctx, sheetURL, creds)
	if err != nil {
		return fmt.Errorf("failed to create Google Sheets service: %w", err)
	}

	if err := sheetsService.AppendRows(ctx, sheetName, batchRows(outputs)); err != nil {
		return fmt.Errorf("failed to write to Google Sheet: %w", err)
	}

	fmt.Printf("Sheet: %s\n", sheetName)
	fmt.Printf("Rows added: %d\n", len(outputs))
	fmt.Printf("URL: %s\n", sheetURL)
	return nil
}

func batchRows(outputs []BatchOutput) []sheets.Row {
	rows := make([]sheets.Row, 0, len(outputs))
	for _, out := range outputs {
		row := sheets.Row{
			File:   filepath.Base(out.File),
			Status: out.Status,
			Error:  out.Error,
		}
		if out.Job != nil {
			row.OperationID = out.Job.OperationID
			row.Provider = out.Job.Provider
			row.SourceLanguage = out.Job.SourceLanguage
			row.TargetLanguage = out.Job.TargetLanguage
			row.SubmittedAt = out.Job.SubmittedAt
		}
		if out.Result != nil {
			row.Status = out.Result.Status
			row.DownloadURL = out.Result.DownloadURL
			if out.Result.ExpiresAt != nil {
				row.ExpiresAt = *out.Result.ExpiresAt
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// getStatusEmoji returns an emoji for the processing status
func getStatusEmoji(status string) string {
	switch status {
	case hub.BatchSucceeded:
		return "✅"
	case hub.BatchFailed:
		return "❌"
	default:
		return "❓"
	}
}
