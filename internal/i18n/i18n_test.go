package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslations(t *testing.T) {
	require.NoError(t, Initialize("en"))

	assert.Equal(t, "Asset not found", T("en", KeyAssetNotFound))
	assert.Equal(t, "找不到資產", T("zh_TW", KeyAssetNotFound))
	assert.Equal(t, "Invalid request", T("en", KeyValidationInvalid, "request"))
	assert.Equal(t, "Asset not found", T("fr", KeyAssetNotFound), "unknown languages fall back to the default")
	assert.Equal(t, "no.such.key", T("en", "no.such.key"))
	assert.True(t, IsSupported("zh_TW"))
	assert.False(t, IsSupported("fr"))
}
