package services

import (
	"context"

	"translator/internal/artifact"
	"translator/internal/poller"
	"translator/pkg/models"
)

// TranslationService defines the operations the CLI runs against the translation hub
type TranslationService interface {
	// StartJob uploads a document and submits one translation job for it
	StartJob(ctx context.Context, document *artifact.Artifact, sourceLang, targetLang string) (*models.TranslationJob, error)

	// AwaitJob polls a job to a terminal state and returns a download link for the result
	AwaitJob(ctx context.Context, job *models.TranslationJob, onProgress func(poller.Event)) (*models.TranslationResult, error)

	// CheckJob reads the job status once, with a download link when it succeeded
	CheckJob(ctx context.Context, job *models.TranslationJob) (*models.TranslationResult, error)

	// TranslateImage recognizes the text in an image and translates it
	TranslateImage(ctx context.Context, image *artifact.Artifact, targetLang string) (*models.ImageTranslation, error)
}
