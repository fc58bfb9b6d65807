package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"translator/internal/artifact"
	"translator/internal/logger"
	"translator/internal/storage"
	"translator/internal/translation"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file...]",
	Short: "Check files before translating them",
	Long: `Identify the content type of each file, check it against the size limit of
its kind and count PDF pages, without contacting any provider.

Documents are translated with 'translator translate', images with
'translator image'. The blob name a document would be uploaded under is shown
for the target language given with --to.`,
	Example: `  # Check a batch of files
  translator inspect report.pdf slides.pptx sign.jpg

  # JSON output including the upload name for French
  translator inspect report.pdf --to fr --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

// InspectOutput represents the JSON output structure of the inspect command
type InspectOutput struct {
	File       string             `json:"file"`
	Artifact   *artifact.Artifact `json:"artifact,omitempty"`
	UploadName string             `json:"upload_name,omitempty"`
	Command    string             `json:"command,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().String("to", "", "Target language used to derive the upload name")
	inspectCmd.Flags().Bool("languages", false, "List the supported language codes")
	inspectCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	inspectCmd.Flags().Bool("json", false, "Output as JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("inspect")

	targetLang, _ := cmd.Flags().GetString("to")
	listLanguages, _ := cmd.Flags().GetBool("languages")
	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if targetLang != "" {
		if err := translation.ValidateLanguages("", targetLang); err != nil {
			return handleTranslationError(err, log)
		}
		targetLang = translation.NormalizeLanguage(targetLang)
	}

	results := make([]InspectOutput, 0, len(args))
	rejected := 0
	for _, path := range args {
		out := InspectOutput{File: path}
		a, err := artifact.Open(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("File rejected")
			out.Error = err.Error()
			rejected++
			results = append(results, out)
			continue
		}

		out.Artifact = a
		switch a.Kind {
		case artifact.KindImage:
			out.Command = "image"
		default:
			out.Command = "translate"
			if targetLang != "" {
				out.UploadName = storage.BlobName(a.Name, targetLang, time.Now(), storage.UploadToken())
			}
		}
		log.Info().
			Str("file", path).
			Str("content_type", a.ContentType).
			Str("kind", string(a.Kind)).
			Int("pages", a.Pages).
			Msg("File accepted")
		results = append(results, out)
	}

	if jsonOutput {
		if err := writeJSON(results, outputPath, log); err != nil {
			return err
		}
	} else {
		var b strings.Builder
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(&b, "%s: rejected: %s\n", r.File, r.Error)
				continue
			}
			fmt.Fprintf(&b, "%s: %s %s, %d bytes", r.File, r.Artifact.Kind, r.Artifact.ContentType, r.Artifact.Size)
			if r.Artifact.ContentType == "application/pdf" {
				fmt.Fprintf(&b, ", %d pages", r.Artifact.Pages)
			}
			fmt.Fprintf(&b, " -> translator %s\n", r.Command)
			if r.UploadName != "" {
				fmt.Fprintf(&b, "  upload name: %s\n", r.UploadName)
			}
		}
		if listLanguages {
			fmt.Fprintf(&b, "\nSupported languages:\n")
			for _, code := range translation.LanguageCodes() {
				fmt.Fprintf(&b, "  %-3s %s\n", code, translation.SupportedLanguages[code])
			}
		}
		if err := writeOutput([]byte(b.String()), outputPath, log); err != nil {
			return err
		}
	}

	if rejected > 0 {
		return fmt.Errorf("%d of %d files cannot be translated", rejected, len(args))
	}
	return nil
}
