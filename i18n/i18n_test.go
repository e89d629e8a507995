package i18n

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Log in", c.T("en", "Login"))
	assert.Equal(t, "Connexion", c.T("fr", "Login"))
	assert.Equal(t, "Log in", c.T("de", "Login"), "unknown language falls back to English")
	assert.Equal(t, "NoSuchKey", c.T("fr", "NoSuchKey"))
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	for key := range c.translations[DefaultLang] {
		for lang, t2 := range c.translations {
			_, ok := t2[key]
			assert.True(t, ok, "%s missing in %s", key, lang)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	tests := []struct{ header, want string }{
		{"", "en"},
		{"fr-CH, fr;q=0.9, en;q=0.8", "fr"},
		{"de-DE, de;q=0.9, fr;q=0.5", "fr"},
		{"de, es", "en"},
		{"FR", "fr"},
		{"*", "en"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Accept-Language", tt.header)
		assert.Equal(t, tt.want, c.DetectLanguage(r), tt.header)
	}
}
