package mail

import (
	"fmt"
	"net/url"
	"strings"
)

// MergeData carries the recipient fields available to merge tokens.
type MergeData struct {
	FirstName string
	LastName  string
	Email     string
	Company   string
}

// ReplaceTemplateVariables substitutes the CRM merge tokens in content:
// {{first_name}}, {{last_name}}, {{email}}, {{company}}, {{full_name}} and
// {{unsubscribe_link}}. Missing fields substitute as the empty string, never
// as the literal token. Applying the function to content with no remaining
// tokens is a no-op.
func ReplaceTemplateVariables(content, appURL string, d MergeData) string {
	fullName := strings.TrimSpace(strings.TrimSpace(d.FirstName) + " " + strings.TrimSpace(d.LastName))

	r := strings.NewReplacer(
		"{{first_name}}", d.FirstName,
		"{{last_name}}", d.LastName,
		"{{email}}", d.Email,
		"{{company}}", d.Company,
		"{{full_name}}", fullName,
		"{{unsubscribe_link}}", UnsubscribeAnchor(appURL, d.Email),
	)
	return r.Replace(content)
}

// UnsubscribeURL returns the unsubscribe endpoint keyed by the URL-encoded
// recipient address.
func UnsubscribeURL(appURL, email string) string {
	return fmt.Sprintf("%s/unsubscribe?email=%s", strings.TrimRight(appURL, "/"), url.QueryEscape(email))
}

// UnsubscribeAnchor returns the anchor tag substituted for
// {{unsubscribe_link}}.
func UnsubscribeAnchor(appURL, email string) string {
	return fmt.Sprintf(`<a href="%s">Unsubscribe</a>`, UnsubscribeURL(appURL, email))
}
