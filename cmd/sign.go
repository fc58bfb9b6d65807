package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"translator/internal/logger"
	"translator/internal/sas"
)

var signCmd = &cobra.Command{
	Use:   "sign [container[/blob]]",
	Short: "Mint or verify a time-limited Azure Storage access URL",
	Long: `Mint a shared access signature URL granting the given permissions on a blob
container or a single blob, or verify an existing URL with --verify.

The URL is signed locally with the storage account key; no request is sent to
Azure. A path without a slash names a container, anything deeper names a blob.

Permissions are given as letters (racwdl) or words (read,add,create,write,delete,list).

Required environment variables:
  AZURE_STORAGE_CONNECTION_STRING - Storage account connection string`,
	Example: `  # Read-only link to a translated document, valid for one hour
  translator sign translated-documents/report-20260314092653-5f2c9e1a-de.pdf

  # Container URL a translation service can list and write into
  translator sign translated-documents --permissions wl --minutes 120

  # Check that a URL was signed by this account and is still valid
  translator sign --verify 'https://account.blob.core.windows.net/...'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSign,
}

// SignOutput represents the JSON output structure of the sign command
type SignOutput struct {
	URL          string    `json:"url"`
	ResourcePath string    `json:"resource_path"`
	Resource     string    `json:"resource"`
	Permissions  string    `json:"permissions"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Valid        bool      `json:"valid"`
}

func init() {
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().StringP("permissions", "p", "r", "Permissions as letters (racwdl) or comma-separated words")
	signCmd.Flags().Int("minutes", 0, "Validity in minutes (default: SAS_EXPIRY_MINUTES)")
	signCmd.Flags().String("verify", "", "Verify this URL instead of minting one")
	signCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	signCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSign(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("sign")

	permissionFlag, _ := cmd.Flags().GetString("permissions")
	minutes, _ := cmd.Flags().GetInt("minutes")
	verifyURL, _ := cmd.Flags().GetString("verify")
	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if verifyURL == "" && len(args) == 0 {
		return fmt.Errorf("a resource path or --verify is required")
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	issuer, err := newIssuer(cfg, log)
	if err != nil {
		return err
	}

	if verifyURL != "" {
		grant, err := issuer.Verify(verifyURL)
		if err != nil {
			return handleSignError(err, log)
		}
		log.Info().
			Str("resource", grant.ResourcePath).
			Time("expires_at", grant.ExpiresAt).
			Msg("Access URL verified")
		return outputGrant(grant, verifyURL, outputPath, jsonOutput, log)
	}

	perms, err := sas.ParsePermissions(strings.Split(permissionFlag, ",")...)
	if err != nil {
		return handleSignError(err, log)
	}
	if minutes == 0 {
		minutes = cfg.SASExpiryMinutes
	}

	log.Info().
		Str("resource", args[0]).
		Str("permissions", perms.String()).
		Int("minutes", minutes).
		Msg("Minting access URL")

	grant, err := issuer.Issue(args[0], perms, time.Duration(minutes)*time.Minute)
	if err != nil {
		return handleSignError(err, log)
	}
	return outputGrant(grant, grant.URL(), outputPath, jsonOutput, log)
}

func outputGrant(grant *sas.Grant, url, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	if jsonOutput {
		return writeJSON(SignOutput{
			URL:          url,
			ResourcePath: grant.ResourcePath,
			Resource:     string(grant.Resource),
			Permissions:  grant.Permissions.String(),
			IssuedAt:     grant.IssuedAt,
			ExpiresAt:    grant.ExpiresAt,
			Valid:        true,
		}, outputPath, log)
	}
	return writeOutput([]byte(url+"\n"), outputPath, log)
}

// handleSignError provides user-friendly error messages for signing failures
func handleSignError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Signing failed")

	switch {
	case errors.Is(err, sas.ErrInvalidPermission):
		return fmt.Errorf("invalid permissions. Use letters from 'racwdl' or words like read,write,list: %w", err)
	case errors.Is(err, sas.ErrInvalidDuration):
		return fmt.Errorf("--minutes must be positive")
	case errors.Is(err, sas.ErrEmptyResource):
		return fmt.Errorf("a container or blob path is required")
	case errors.Is(err, sas.ErrConfiguration):
		return fmt.Errorf("storage credentials are invalid. Check AZURE_STORAGE_CONNECTION_STRING: %w", err)
	case errors.Is(err, sas.ErrSignatureMismatch):
		return fmt.Errorf("the URL was not signed by this storage account or has been altered")
	case errors.Is(err, sas.ErrExpired):
		return fmt.Errorf("the URL has expired")
	case errors.Is(err, sas.ErrNotYetValid):
		return fmt.Errorf("the URL is not valid yet")
	case errors.Is(err, sas.ErrMalformedURL):
		return fmt.Errorf("the URL is not a shared access signature URL: %w", err)
	default:
		return fmt.Errorf("signing failed: %w", err)
	}
}
