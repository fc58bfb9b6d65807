package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"translator/internal/artifact"
	"translator/internal/hub"
	"translator/internal/logger"
	"translator/internal/ocr"
	"translator/internal/translation"
)

var imageCmd = &cobra.Command{
	Use:   "image [image-file]",
	Short: "Translate the text in an image",
	Long: `Recognize the text in an image and translate it into the target language.

Text recognition uses Azure AI Vision Read (TRANSLATOR_PROVIDER=azure) or Google
Cloud Vision (TRANSLATOR_PROVIDER=google). The recognized text is translated by
the same provider, or by OpenAI with --text-provider openai.

An image without readable text is not an error; the result reports that no
text was detected.

Supported images: JPEG, PNG, BMP, GIF, WebP and TIFF up to 20MB.`,
	Example: `  # Translate a photographed street sign into English
  translator image sign.jpg --to en

  # Use OpenAI for the translation step and print JSON
  translator image menu.png --to de --text-provider openai --json`,
	Args: cobra.ExactArgs(1),
	RunE: runImage,
}

func init() {
	rootCmd.AddCommand(imageCmd)

	imageCmd.Flags().String("to", "", "Target language code")
	imageCmd.Flags().String("text-provider", "", "Text translation backend: the configured provider (default) or openai")
	imageCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	imageCmd.Flags().Bool("json", false, "Output as JSON")
	imageCmd.Flags().Int("timeout", 180, "Processing timeout in seconds")
	_ = imageCmd.MarkFlagRequired("to")
}

func runImage(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("image")

	targetLang, _ := cmd.Flags().GetString("to")
	textProvider, _ := cmd.Flags().GetString("text-provider")
	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	log.Info().
		Str("file", imagePath).
		Str("to", targetLang).
		Str("text_provider", textProvider).
		Int("timeout", timeoutSecs).
		Msg("Starting image translation")

	if err := translation.ValidateLanguages("", targetLang); err != nil {
		return handleImageError(err, log)
	}

	image, err := openArtifact(imagePath, log)
	if err != nil {
		return err
	}
	if image.Kind != artifact.KindImage {
		return fmt.Errorf("%s is a document; use 'translator translate' for documents", image.Name)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	translationHub, closeClients, err := createImageHub(ctx, cfg, textProvider, log)
	if err != nil {
		return err
	}
	defer closeClients()

	result, err := translationHub.TranslateImage(ctx, image, targetLang)
	if err != nil {
		return handleImageError(err, log)
	}

	log.Info().
		Str("language", result.Language).
		Bool("no_text", result.NoTextDetected).
		Int("text_length", len(result.OriginalText)).
		Msg("Image translation completed successfully")

	if jsonOutput {
		return writeJSON(result, outputPath, log)
	}

	var b strings.Builder
	if result.NoTextDetected {
		b.WriteString(result.TranslatedText + "\n")
		return writeOutput([]byte(b.String()), outputPath, log)
	}
	fmt.Fprintf(&b, "=== Original (%s) ===\n%s\n\n", result.Language, result.OriginalText)
	fmt.Fprintf(&b, "=== Translation (%s) ===\n%s\n", result.TargetLanguage, result.TranslatedText)
	return writeOutput([]byte(b.String()), outputPath, log)
}

// handleImageError provides user-friendly error messages for image translation failures
func handleImageError(err error, log zerolog.Logger) error {
	switch {
	case errors.Is(err, ocr.ErrDocumentTooLarge):
		log.Error().Err(err).Msg("Image translation failed")
		return fmt.Errorf("image is too large (maximum 20MB). Try resizing or compressing it")
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		log.Error().Err(err).Msg("Image translation failed")
		return fmt.Errorf("image format is not supported for text recognition: %w", err)
	case errors.Is(err, ocr.ErrMissingCredentials):
		log.Error().Err(err).Msg("Image translation failed")
		return fmt.Errorf("text recognition was refused. Check the OCR credentials and their permissions: %w", err)
	case errors.Is(err, ocr.ErrOCRFailed):
		log.Error().Err(err).Msg("Image translation failed")
		return fmt.Errorf("text recognition failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	case errors.Is(err, hub.ErrNotConfigured):
		log.Error().Err(err).Msg("Image translation failed")
		return fmt.Errorf("image translation is not configured: %w", err)
	default:
		return handleTranslationError(err, log)
	}
}
