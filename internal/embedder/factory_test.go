package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ProviderConfig
		provider string
		dim      int
		wantErr  error
	}{
		{
			name:     "zero value is local",
			cfg:      ProviderConfig{},
			provider: ProviderLocal,
			dim:      LocalDimension,
		},
		{
			name:     "local with dimension",
			cfg:      ProviderConfig{Kind: KindLocal, Dimension: 64},
			provider: ProviderLocal,
			dim:      64,
		},
		{
			name:     "remote openai",
			cfg:      ProviderConfig{Kind: KindRemote, Provider: "OpenAI", APIKey: testKey},
			provider: ProviderOpenAI,
			dim:      OpenAIDimension,
		},
		{
			name:     "remote jina",
			cfg:      ProviderConfig{Kind: KindRemote, Provider: ProviderJina, APIKey: testKey, CacheSize: 10},
			provider: ProviderJina,
			dim:      JinaDimension,
		},
		{
			name:    "remote without key",
			cfg:     ProviderConfig{Kind: KindRemote, Provider: ProviderOpenAI},
			wantErr: ErrNoProviderEnabled,
		},
		{
			name:    "remote unknown provider",
			cfg:     ProviderConfig{Kind: KindRemote, Provider: "acme", APIKey: testKey},
			wantErr: ErrUnsupportedModel,
		},
		{
			name:    "unknown kind",
			cfg:     ProviderConfig{Kind: "quantum"},
			wantErr: ErrUnsupportedModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer e.Close()
			assert.Equal(t, tt.provider, e.Provider())
			assert.Equal(t, tt.dim, e.Dimension())
		})
	}
}

func TestValidateCredential(t *testing.T) {
	assert.NoError(t, ValidateCredential(testKey))
	assert.ErrorIs(t, ValidateCredential(""), ErrNoProviderEnabled)
	assert.ErrorIs(t, ValidateCredential("sk-test 0123456789abcdef"), ErrInvalidCredential)
	assert.ErrorIs(t, ValidateCredential("short"), ErrInvalidCredential)
}
