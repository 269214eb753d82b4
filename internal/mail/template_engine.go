package mail

import (
	"crypto/md5"
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// TemplateService renders campaign content written in the Liquid template
// language. Parsed templates are cached by content hash, so re-rendering the
// same campaign body for thousands of recipients parses once.
//
// The simple {{token}} merge tags of ReplaceTemplateVariables are applied
// after Liquid rendering; campaigns that use no Liquid constructs pass
// through unchanged.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // md5(source) -> *liquid.Template
}

// NewTemplateService creates a template service with the CRM filters
// registered.
func NewTemplateService() *TemplateService {
	ts := &TemplateService{engine: liquid.NewEngine()}
	ts.registerFilters()
	return ts
}

func (ts *TemplateService) registerFilters() {
	// {{ first_name | default: "there" }}
	ts.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// {{ name | capitalize }}
	ts.engine.RegisterFilter("capitalize", func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	})

	// {{ email | urlencode }}
	ts.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// {{ user_input | escape }}
	ts.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})
}

// Render parses (or reuses) the template and renders it with the given
// bindings.
func (ts *TemplateService) Render(source string, data map[string]interface{}) (string, error) {
	key := fmt.Sprintf("%x", md5.Sum([]byte(source)))

	var tpl *liquid.Template
	if cached, ok := ts.cache.Load(key); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := ts.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		ts.cache.Store(key, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(data)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}
