package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// DefaultLang is used when a requested language has no catalog.
const DefaultLang = "ru"

type Translator struct {
	lang         string
	translations map[string]string
	fallback     *Translator
}

// NewTranslator loads locales/<langCode>.yaml from fsys. Keys missing from a
// non-default catalog fall back to the default language.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	t, err := load(fsys, langCode)
	if err != nil {
		return nil, err
	}
	if langCode != DefaultLang {
		if def, err := load(fsys, DefaultLang); err == nil {
			t.fallback = def
		}
	}
	return t, nil
}

func load(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T translates key, formatting args into it. Unknown keys are returned as is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		if t.fallback != nil {
			return t.fallback.T(key, args...)
		}
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

func (t *Translator) Lang() string { return t.lang }

// Catalog holds one translator per supported language.
type Catalog struct {
	byLang map[string]*Translator
	def    *Translator
}

func NewCatalog(fsys fs.FS, langs ...string) (*Catalog, error) {
	def, err := NewTranslator(fsys, DefaultLang)
	if err != nil {
		return nil, err
	}
	c := &Catalog{byLang: map[string]*Translator{DefaultLang: def}, def: def}
	for _, l := range langs {
		if l == DefaultLang {
			continue
		}
		tr, err := NewTranslator(fsys, l)
		if err != nil {
			return nil, err
		}
		c.byLang[l] = tr
	}
	return c, nil
}

// For returns the translator for lang, or the default one.
func (c *Catalog) For(lang string) *Translator {
	if t, ok := c.byLang[lang]; ok {
		return t
	}
	return c.def
}
