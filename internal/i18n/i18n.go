// Package i18n translates user-visible messages. Catalogues are YAML files
// embedded from the locales directory and loaded into a go-i18n bundle.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Catalog holds every loaded translation.
type Catalog struct {
	bundle   *goi18n.Bundle
	fallback language.Tag
}

// New loads the embedded catalogues. fallback is the language used when a
// request does not ask for a supported one.
func New(fallback string) (*Catalog, error) {
	tag, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", fallback, err)
	}

	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, f.Name()); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name(), err)
		}
	}

	return &Catalog{bundle: bundle, fallback: tag}, nil
}

// Languages returns the languages with a loaded catalogue.
func (c *Catalog) Languages() []language.Tag {
	return c.bundle.LanguageTags()
}

// Localizer returns a translator for the languages listed in an
// Accept-Language header value, falling back to the catalog default.
func (c *Catalog) Localizer(acceptLanguage string) *Localizer {
	return &Localizer{l: goi18n.NewLocalizer(c.bundle, acceptLanguage, c.fallback.String())}
}

// Localizer translates message IDs into one language.
type Localizer struct {
	l *goi18n.Localizer
}

// T translates messageID, filling template fields from data. Unknown IDs are
// returned unchanged.
func (l *Localizer) T(messageID string, data map[string]any) string {
	msg, err := l.l.Localize(&goi18n.LocalizeConfig{MessageID: messageID, TemplateData: data})
	if err != nil {
		return messageID
	}
	return msg
}

// Name translates a message whose only template field is Name.
func (l *Localizer) Name(messageID, name string) string {
	return l.T(messageID, map[string]any{"Name": name})
}
