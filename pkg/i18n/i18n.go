// Package i18n looks up human-readable panel texts. Translations are only
// ever used for display, never for control flow.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"golang.org/x/text/language"
)

//go:embed translations/*.json
var translationFS embed.FS

// Supported languages, the first one is the fallback.
var supported = []language.Tag{language.English, language.German}

var (
	tablesOnce sync.Once
	tables     map[language.Tag]map[string]string
	tablesErr  error
	matcher    = language.NewMatcher(supported)
)

func loadTables() {
	tables = make(map[language.Tag]map[string]string, len(supported))
	for _, tag := range supported {
		base, _ := tag.Base()
		data, err := translationFS.ReadFile(path.Join("translations", base.String()+".json"))
		if err != nil {
			tablesErr = fmt.Errorf("failed to read %s translations: %w", tag, err)
			return
		}
		var table map[string]string
		if err := json.Unmarshal(data, &table); err != nil {
			tablesErr = fmt.Errorf("failed to parse %s translations: %w", tag, err)
			return
		}
		tables[tag] = table
	}
}

// Catalog resolves keys for one language.
type Catalog struct {
	tag      language.Tag
	table    map[string]string
	fallback map[string]string
}

// New returns the catalog best matching lang, which may be a BCP 47 tag or
// an Accept-Language style list ("de-AT,de;q=0.9,en;q=0.5").
func New(lang string) (*Catalog, error) {
	tablesOnce.Do(loadTables)
	if tablesErr != nil {
		return nil, tablesErr
	}
	_, idx := language.MatchStrings(matcher, lang)
	tag := supported[idx]
	return &Catalog{
		tag:      tag,
		table:    tables[tag],
		fallback: tables[supported[0]],
	}, nil
}

// Default returns the English catalog.
func Default() *Catalog {
	c, err := New("en")
	if err != nil {
		// embedded tables are part of the binary
		panic(err)
	}
	return c
}

// Language returns the matched language tag.
func (c *Catalog) Language() string {
	return c.tag.String()
}

// T returns the text for key with {name} placeholders replaced from args.
// Missing keys fall back to English and then to the key itself.
func (c *Catalog) T(key string, args map[string]any) string {
	text, ok := c.table[key]
	if !ok {
		text, ok = c.fallback[key]
	}
	if !ok {
		text = key
	}
	return Format(text, args)
}

// Format substitutes {name} placeholders. Unknown placeholders are kept.
func Format(text string, args map[string]any) string {
	if len(args) == 0 || !strings.Contains(text, "{") {
		return text
	}
	var b strings.Builder
	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			b.WriteString(text)
			break
		}
		end := strings.IndexByte(text[open:], '}')
		if end < 0 {
			b.WriteString(text)
			break
		}
		end += open
		name := text[open+1 : end]
		b.WriteString(text[:open])
		if v, ok := args[name]; ok {
			b.WriteString(cast.ToString(v))
		} else {
			b.WriteString(text[open : end+1])
		}
		text = text[end+1:]
	}
	return b.String()
}
