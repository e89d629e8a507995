package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
)

//go:embed locales/*.json
var locales embed.FS

const DefaultLang = "en"

// Catalog holds the translated strings of every bundled language.
type Catalog struct {
	translations map[string]map[string]string
}

// Load reads the bundled catalogs.
func Load() (*Catalog, error) {
	c := &Catalog{translations: make(map[string]map[string]string)}
	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := locales.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, err
		}
		var t map[string]string
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("locale %s: %w", e.Name(), err)
		}
		c.translations[strings.TrimSuffix(e.Name(), ".json")] = t
	}
	if _, ok := c.translations[DefaultLang]; !ok {
		return nil, fmt.Errorf("missing %s locale", DefaultLang)
	}
	return c, nil
}

func (c *Catalog) T(lang, key string) string {
	if t, ok := c.translations[lang]; ok {
		if val, ok := t[key]; ok {
			return val
		}
	}
	// Fallback to English
	if lang != DefaultLang {
		return c.T(DefaultLang, key)
	}
	return key
}

func (c *Catalog) DetectLanguage(r *http.Request) string {
	// Example: fr-CH, fr;q=0.9, en;q=0.8, de;q=0.7, *;q=0.5
	accept := r.Header.Get("Accept-Language")
	for _, part := range strings.Split(accept, ",") {
		lang := strings.TrimSpace(strings.Split(part, ";")[0])
		if len(lang) < 2 {
			continue
		}
		lang = strings.ToLower(lang[:2]) // "en-US" -> "en"
		if _, ok := c.translations[lang]; ok {
			return lang
		}
	}
	return DefaultLang
}
