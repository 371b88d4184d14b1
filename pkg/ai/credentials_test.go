package ai

import (
	"context"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	value *string
	err   error
	asked []string
}

func (f *fakeSecrets) GetSecret(_ context.Context, name string, _ string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.asked = append(f.asked, name)
	if f.err != nil {
		return azsecrets.GetSecretResponse{}, f.err
	}
	resp := azsecrets.GetSecretResponse{}
	resp.Value = f.value
	return resp, nil
}

func strPtr(s string) *string { return &s }

func TestResolveCredentialPrefersEnvironment(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "from-env")
	vault := &fakeSecrets{value: strPtr("from-vault")}

	got := ResolveCredential(context.Background(), zerolog.Nop(),
		EnvSource{Key: "TEST_LLM_KEY"},
		NewVaultSourceWithClient("kv", "", vault),
	)
	require.Equal(t, "from-env", got)
	require.Empty(t, vault.asked)
}

func TestResolveCredentialFallsBackToVault(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "")
	vault := &fakeSecrets{value: strPtr("  from-vault\n")}

	got := ResolveCredential(context.Background(), zerolog.Nop(),
		EnvSource{Key: "TEST_LLM_KEY"},
		NewVaultSourceWithClient("kv", "", vault),
	)
	require.Equal(t, "from-vault", got)
	require.Equal(t, []string{DefaultVaultSecretName}, vault.asked)
}

func TestResolveCredentialSkipsFailingSource(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "")
	broken := &fakeSecrets{err: errors.New("forbidden")}

	got := ResolveCredential(context.Background(), zerolog.Nop(),
		EnvSource{Key: "TEST_LLM_KEY"},
		NewVaultSourceWithClient("kv", "custom", broken),
	)
	require.Empty(t, got)
	require.Equal(t, []string{"custom"}, broken.asked)
}

func TestVaultSourceNilValue(t *testing.T) {
	src := NewVaultSourceWithClient("kv", "", &fakeSecrets{})

	got, err := src.Lookup(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, "keyvault:kv/"+DefaultVaultSecretName, src.Name())
}

func TestNewVaultSourceRequiresName(t *testing.T) {
	_, err := NewVaultSource("", "")
	require.Error(t, err)
}
