package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"translator/internal/logger"
	"translator/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [operation-id]",
	Short: "Check a document translation job",
	Long: `Read the status of a document translation job once, or wait for it with --wait.
When the job has succeeded a read-only download link for the translated
document is printed.

The job is identified either by a job file written by 'translator translate
--job-file' or by an operation ID together with the result blob name.`,
	Example: `  # Check a job from its job file
  translator status --job-file report.job.json

  # Wait for the job to finish
  translator status --job-file report.job.json --wait

  # Check by operation ID
  translator status https://example.cognitiveservices.azure.com/translator/document/batches/0cb1...?api-version=2024-05-01 \
    --result-name report-20260314092653-5f2c9e1a-de.pdf`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().String("job-file", "", "Job file written by 'translator translate --job-file'")
	statusCmd.Flags().String("result-name", "", "Blob name of the translated document")
	statusCmd.Flags().String("result-container", "", "Container of the translated document (default: TARGET_CONTAINER)")
	statusCmd.Flags().Bool("wait", false, "Wait until the job reaches a terminal state")
	statusCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	statusCmd.Flags().Int("timeout", 900, "Overall timeout in seconds")
}

func runStatus(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("status")

	jobFile, _ := cmd.Flags().GetString("job-file")
	resultName, _ := cmd.Flags().GetString("result-name")
	resultContainer, _ := cmd.Flags().GetString("result-container")
	wait, _ := cmd.Flags().GetBool("wait")
	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	job := &models.TranslationJob{}
	if jobFile != "" {
		job, err = readJobFile(jobFile)
		if err != nil {
			log.Error().Err(err).Str("job_file", jobFile).Msg("Failed to read job file")
			return err
		}
	}
	if len(args) == 1 {
		job.OperationID = args[0]
	}
	if resultName != "" {
		job.ResultName = resultName
	}
	if resultContainer != "" {
		job.ResultContainer = resultContainer
	}
	if job.ResultContainer == "" {
		job.ResultContainer = cfg.TargetContainer
	}
	if job.OperationID == "" {
		return fmt.Errorf("an operation ID or --job-file is required")
	}

	log.Info().
		Str("operation_id", job.OperationID).
		Str("result", job.ResultContainer+"/"+job.ResultName).
		Bool("wait", wait).
		Msg("Checking translation job")

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	translationHub, err := createDocumentHub(ctx, cfg, log)
	if err != nil {
		return err
	}

	var result *models.TranslationResult
	if wait {
		result, err = translationHub.AwaitJob(ctx, job, progressLogger(logger.WithOperation("status", job.OperationID)))
	} else {
		result, err = translationHub.CheckJob(ctx, job)
	}
	if err != nil {
		return handleTranslationError(err, log)
	}

	log.Info().
		Str("operation_id", job.OperationID).
		Str("status", result.Status).
		Bool("downloadable", result.DownloadURL != "").
		Msg("Translation job checked")

	if jsonOutput {
		return writeJSON(result, outputPath, log)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Operation:    %s\n", job.OperationID)
	fmt.Fprintf(&b, "Status:       %s\n", result.Status)
	writeDownload(&b, result)
	if result.DownloadURL == "" && result.Status == "Succeeded" {
		b.WriteString("Download URL: unavailable, pass --result-name to locate the translated document\n")
	}
	return writeOutput([]byte(b.String()), outputPath, log)
}

func readJobFile(path string) (*models.TranslationJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var job models.TranslationJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("invalid job file %s: %w", path, err)
	}
	return &job, nil
}
