// internal/docai/credentials.go
package docai

import (
	"context"
	"fmt"
	"os"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/xkilldash9x/citefill/internal/config"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// serviceAccountKey is the subset of a service account key file needed to
// mint tokens from inline credentials.
type serviceAccountKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id,omitempty"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// tokenSource resolves credentials in order: key file, inline client email
// and private key, application default credentials. A token is fetched
// eagerly so bad credentials surface before any document is sent.
func tokenSource(ctx context.Context, cfg config.DocAIConfig) (oauth2.TokenSource, error) {
	creds, err := findCredentials(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if _, err := creds.TokenSource.Token(); err != nil {
		return nil, fmt.Errorf("%w: failed to get access token: %v", ErrAuth, err)
	}
	return creds.TokenSource, nil
}

func findCredentials(ctx context.Context, cfg config.DocAIConfig) (*google.Credentials, error) {
	switch {
	case cfg.CredentialsFile != "":
		path, err := homedir.Expand(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials path %q: %w", cfg.CredentialsFile, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		return google.CredentialsFromJSON(ctx, data, cloudPlatformScope)

	case cfg.ClientEmail != "" && cfg.PrivateKey != "":
		data, err := inlineKey(cfg)
		if err != nil {
			return nil, err
		}
		return google.CredentialsFromJSON(ctx, data, cloudPlatformScope)

	default:
		return google.FindDefaultCredentials(ctx, cloudPlatformScope)
	}
}

// inlineKey assembles a service account key from the configured email and
// private key. Private keys pasted into env files usually carry literal \n.
func inlineKey(cfg config.DocAIConfig) ([]byte, error) {
	key := serviceAccountKey{
		Type:        "service_account",
		ProjectID:   cfg.ProjectID,
		ClientEmail: cfg.ClientEmail,
		PrivateKey:  strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n"),
		TokenURI:    google.Endpoint.TokenURL,
	}
	data, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inline credentials: %w", err)
	}
	return data, nil
}
