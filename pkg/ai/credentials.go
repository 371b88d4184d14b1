package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultVaultSecretName is the Key Vault secret holding the LLM API key.
const DefaultVaultSecretName = "groq-api-key"

const defaultVaultTimeout = 10 * time.Second

// CredentialSource is one place an API key can come from.
type CredentialSource interface {
	Name() string
	Lookup(ctx context.Context) (string, error)
}

// EnvSource reads the credential from an environment variable.
type EnvSource struct {
	Key string
}

func (e EnvSource) Name() string { return "env:" + e.Key }

func (e EnvSource) Lookup(context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(e.Key)), nil
}

// SecretGetter is the subset of the Key Vault client used by VaultSource.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// VaultSource reads the credential from an Azure Key Vault secret.
type VaultSource struct {
	vault   string
	secret  string
	client  SecretGetter
	timeout time.Duration
}

// NewVaultSource builds a source for https://<vaultName>.vault.azure.net/
// authenticated with the default Azure credential chain.
func NewVaultSource(vaultName, secretName string) (*VaultSource, error) {
	if vaultName == "" {
		return nil, errors.New("vault name is empty")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create azure credential")
	}
	client, err := azsecrets.NewClient(fmt.Sprintf("https://%s.vault.azure.net/", vaultName), cred, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create key vault client")
	}
	return NewVaultSourceWithClient(vaultName, secretName, client), nil
}

// NewVaultSourceWithClient builds a VaultSource around an existing client.
func NewVaultSourceWithClient(vaultName, secretName string, client SecretGetter) *VaultSource {
	if secretName == "" {
		secretName = DefaultVaultSecretName
	}
	return &VaultSource{
		vault:   vaultName,
		secret:  secretName,
		client:  client,
		timeout: defaultVaultTimeout,
	}
}

func (v *VaultSource) Name() string { return "keyvault:" + v.vault + "/" + v.secret }

func (v *VaultSource) Lookup(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	resp, err := v.client.GetSecret(ctx, v.secret, "", nil)
	if err != nil {
		return "", errors.Wrapf(err, "fetch secret %q", v.secret)
	}
	if resp.Value == nil {
		return "", nil
	}
	return strings.TrimSpace(*resp.Value), nil
}

// ResolveCredential asks each source in order and returns the first
// non-empty value. Failing sources are logged and skipped; an empty
// result means no source had the credential.
func ResolveCredential(ctx context.Context, logger zerolog.Logger, sources ...CredentialSource) string {
	for _, src := range sources {
		if src == nil {
			continue
		}
		value, err := src.Lookup(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("source", src.Name()).Msg("failed to fetch credential")
			continue
		}
		if value != "" {
			logger.Info().Str("source", src.Name()).Msg("credential resolved")
			return value
		}
	}
	logger.Warn().Msg("no credential source provided an API key")
	return ""
}
