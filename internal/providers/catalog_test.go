package providers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providerhealth"
)

func TestBuildProvider_ConstructsEachKnownName(t *testing.T) {
	for _, name := range []Name{Eastmoney, Tencent, Sina} {
		provider, err := BuildProvider(name, "", zerolog.Nop())
		require.NoError(t, err, name)
		assert.Equal(t, name, provider.Name())
	}
}

func TestBuildProvider_ProAPIWithBadTokenLatchesInitFailed(t *testing.T) {
	_, err := BuildProvider(ProAPI, "uid=123", zerolog.Nop())
	require.Error(t, err)
	reason := providerhealth.Global().GetDisabledReason(string(ProAPI))
	assert.Contains(t, reason, "init_failed")
}

func TestBuildProvider_UnknownNameErrors(t *testing.T) {
	_, err := BuildProvider(Name("unknown"), "", zerolog.Nop())
	require.Error(t, err)
}

func TestBuildCatalog_SkipsFailedProviderWithoutAbortingOthers(t *testing.T) {
	catalog := BuildCatalog([]Name{Eastmoney, Tencent, ProAPI}, "uid=bad", zerolog.Nop())
	assert.Contains(t, catalog, Eastmoney)
	assert.Contains(t, catalog, Tencent)
	assert.NotContains(t, catalog, ProAPI)
}
