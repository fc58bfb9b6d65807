package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"translator/internal/config"
	"translator/internal/hub"
	"translator/internal/ocr"
	"translator/internal/sas"
	"translator/internal/storage"
	"translator/internal/translation"
)

// Text translation backends accepted by --text-provider
const (
	textProviderDefault = ""
	textProviderOpenAI  = "openai"
)

// loadConfig reads the environment configuration for a command
func loadConfig(log zerolog.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Configuration is invalid")
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newIssuer creates the SAS issuer from the storage connection string
func newIssuer(cfg *config.Config, log zerolog.Logger) (*sas.Issuer, error) {
	if err := cfg.RequireStorage(); err != nil {
		log.Error().Err(err).Msg("Azure Storage is not configured")
		return nil, fmt.Errorf("Azure Storage is not configured. Please set AZURE_STORAGE_CONNECTION_STRING:\n"+
			"  export AZURE_STORAGE_CONNECTION_STRING='DefaultEndpointsProtocol=https;AccountName=...;AccountKey=...'\n\n"+
			"Original error: %w", err)
	}

	var opts []sas.Option
	if cfg.AzureStorageEndpoint != "" {
		opts = append(opts, sas.WithBaseURL(cfg.AzureStorageEndpoint))
		if strings.HasPrefix(cfg.AzureStorageEndpoint, "http://") {
			// Local emulators such as Azurite only speak plain HTTP.
			opts = append(opts, sas.WithAllowHTTP())
		}
	}

	issuer, err := sas.NewIssuerFromConnectionString(cfg.AzureStorageConnectionString, opts...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create SAS issuer")
		return nil, fmt.Errorf("failed to create SAS issuer: %w", err)
	}
	return issuer, nil
}

// createDocumentHub wires storage and the configured job provider into a hub
func createDocumentHub(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*hub.Hub, error) {
	if err := cfg.RequireDocumentTranslation(); err != nil {
		log.Error().
			Err(err).
			Str("provider", cfg.Provider).
			Msg("Document translation is not configured")
		return nil, fmt.Errorf("document translation is not configured for provider %q: %w", cfg.Provider, err)
	}

	var (
		deps        hub.Dependencies
		storageType = translation.StorageFile
	)

	switch cfg.Provider {
	case config.ProviderGoogle:
		store, err := storage.NewS3Store(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to create S3-compatible store")
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		jobs, err := translation.NewGoogleDocumentTranslator(ctx, translation.GoogleDocumentConfig{
			ProjectID: cfg.GoogleCloudProject,
			Location:  cfg.GoogleTranslateLocation,
		}, cfg.GoogleClientOptions()...)
		if err != nil {
			return nil, handleProviderSetupError(err, "Cloud Translation", log)
		}
		deps = hub.Dependencies{Store: store, Links: store, Jobs: jobs}

	default:
		issuer, err := newIssuer(cfg, log)
		if err != nil {
			return nil, err
		}
		store, err := storage.NewAzureBlobStore(issuer, nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create blob store")
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		jobs, err := translation.NewAzureDocumentTranslator(translation.AzureDocumentConfig{
			Endpoint:     cfg.AzureTranslatorEndpoint,
			Key:          cfg.AzureTranslatorKey,
			Region:       cfg.AzureTranslatorRegion,
			GrantMinutes: cfg.SASExpiryMinutes,
			RateLimit:    cfg.ProviderRateLimit,
		}, issuer)
		if err != nil {
			return nil, handleProviderSetupError(err, "Azure AI Translator", log)
		}
		deps = hub.Dependencies{Store: store, Links: store, Jobs: jobs}
	}

	h, err := hub.New(deps, hub.Config{
		SourceContainer: cfg.SourceContainer,
		TargetContainer: cfg.TargetContainer,
		StorageType:     storageType,
		DownloadExpiry:  cfg.DownloadExpiry(),
		Poll:            cfg.GetPollConfig(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create translation hub")
		return nil, fmt.Errorf("failed to create translation hub: %w", err)
	}

	log.Debug().
		Str("provider", cfg.Provider).
		Str("source_container", cfg.SourceContainer).
		Str("target_container", cfg.TargetContainer).
		Msg("Translation hub created successfully")
	return h, nil
}

// createImageHub wires OCR and a text translator into a hub. The returned
// func releases gRPC connections.
func createImageHub(ctx context.Context, cfg *config.Config, textProvider string, log zerolog.Logger) (*hub.Hub, func(), error) {
	recognizer, closeOCR, err := createOCRService(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	translator, err := createTextTranslator(ctx, cfg, textProvider, log)
	if err != nil {
		closeOCR()
		return nil, nil, err
	}

	h, err := hub.New(hub.Dependencies{OCR: recognizer, Text: translator}, hub.Config{})
	if err != nil {
		closeOCR()
		return nil, nil, fmt.Errorf("failed to create translation hub: %w", err)
	}
	return h, closeOCR, nil
}

// createOCRService picks the OCR backend of the configured provider. For
// Google, PDFs go to Document AI when a processor is configured.
func createOCRService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Service, func(), error) {
	if err := cfg.RequireImageTranslation(); err != nil {
		log.Error().
			Err(err).
			Str("provider", cfg.Provider).
			Msg("OCR is not configured")
		return nil, nil, fmt.Errorf("OCR is not configured for provider %q: %w", cfg.Provider, err)
	}

	if cfg.Provider != config.ProviderGoogle {
		service, err := ocr.NewAzureReadService(ocr.AzureReadConfig{
			Endpoint:  cfg.AzureVisionEndpoint,
			Key:       cfg.AzureVisionKey,
			RateLimit: cfg.ProviderRateLimit,
		})
		if err != nil {
			return nil, nil, handleProviderSetupError(err, "Azure AI Vision", log)
		}
		log.Debug().Str("backend", "azure-read").Msg("OCR service created successfully")
		return service, func() {}, nil
	}

	images, err := ocr.NewGoogleVisionService(ctx, cfg.GoogleClientOptions()...)
	if err != nil {
		return nil, nil, handleProviderSetupError(err, "Google Cloud Vision", log)
	}
	router := &ocr.Router{Images: images}
	closers := []func() error{images.Close}

	if cfg.DocumentAIProcessorID != "" {
		documents, err := ocr.NewDocumentAIService(ctx, ocr.DocumentAIConfig{
			ProjectID:   cfg.GoogleCloudProject,
			Location:    cfg.GoogleCloudLocation,
			ProcessorID: cfg.DocumentAIProcessorID,
		}, cfg.GoogleClientOptions()...)
		if err != nil {
			_ = images.Close()
			return nil, nil, handleProviderSetupError(err, "Document AI", log)
		}
		router.Documents = documents
		closers = append(closers, documents.Close)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("Failed to close OCR client")
			}
		}
	}

	log.Debug().
		Str("backend", "google-vision").
		Bool("document_ai", router.Documents != nil).
		Msg("OCR service created successfully")
	return router, closeAll, nil
}

// createTextTranslator picks the text translation backend. textProvider
// "openai" overrides the configured cloud provider.
func createTextTranslator(ctx context.Context, cfg *config.Config, textProvider string, log zerolog.Logger) (translation.TextTranslator, error) {
	switch strings.ToLower(textProvider) {
	case textProviderOpenAI:
		translator, err := translation.NewOpenAITextTranslator(translation.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		})
		if err != nil {
			return nil, handleProviderSetupError(err, "OpenAI", log)
		}
		return translator, nil
	case textProviderDefault, cfg.Provider:
	default:
		return nil, fmt.Errorf("unknown text provider %q, use %q or leave empty", textProvider, textProviderOpenAI)
	}

	if cfg.Provider == config.ProviderGoogle {
		translator, err := translation.NewGoogleTextTranslator(ctx, cfg.GoogleCloudProject, cfg.GoogleClientOptions()...)
		if err != nil {
			return nil, handleProviderSetupError(err, "Cloud Translation", log)
		}
		return translator, nil
	}

	translator, err := translation.NewAzureTextTranslator(translation.AzureTextConfig{
		Endpoint:  cfg.AzureTextTranslatorEndpoint,
		Key:       cfg.AzureTranslatorKey,
		Region:    cfg.AzureTranslatorRegion,
		RateLimit: cfg.ProviderRateLimit,
	})
	if err != nil {
		return nil, handleProviderSetupError(err, "Azure AI Translator", log)
	}
	return translator, nil
}

// handleProviderSetupError explains provider constructor failures
func handleProviderSetupError(err error, provider string, log zerolog.Logger) error {
	log.Error().
		Err(err).
		Str("provider", provider).
		Msg("Failed to create provider client")

	switch {
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("%s credentials not configured. Please set one of:\n\n"+
			"1. GOOGLE_APPLICATION_CREDENTIALS with the path to a service account JSON file\n"+
			"2. GOOGLE_CREDENTIALS with inline JSON credentials\n"+
			"3. Application Default Credentials via: gcloud auth application-default login\n\n"+
			"Original error: %w", provider, err)
	case errors.Is(err, translation.ErrInvalidConfiguration), errors.Is(err, ocr.ErrInvalidConfiguration):
		return fmt.Errorf("invalid %s configuration. Please check your .env file: %w", provider, err)
	default:
		return fmt.Errorf("failed to create %s client: %w", provider, err)
	}
}
