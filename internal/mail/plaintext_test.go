package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePlainText(t *testing.T) {
	html := `<html><body><h1>Hello</h1><p>Welcome to   our<br>newsletter.</p></body></html>`
	got := DerivePlainText(html)

	assert.Equal(t, "Hello Welcome to our newsletter.", got)
	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, ">")
	assert.NotContains(t, got, "  ")
}

func TestDerivePlainTextBrVariants(t *testing.T) {
	for _, br := range []string{"<br>", "<br/>", "<br />", "<BR>", "<Br/>"} {
		got := DerivePlainText("a" + br + "b")
		assert.Equal(t, "a b", got, br)
	}
}

func TestDerivePlainTextIdempotent(t *testing.T) {
	html := "<div>  one <br> two  <span>three</span>  </div>"
	once := DerivePlainText(html)
	twice := DerivePlainText(once)
	assert.Equal(t, once, twice)
}

func TestDerivePlainTextEmpty(t *testing.T) {
	assert.Equal(t, "", DerivePlainText(""))
	assert.Equal(t, "", DerivePlainText("<p></p>"))
	assert.Equal(t, "", DerivePlainText("   \n\t  "))
}

func TestDerivePlainTextNoTrailingWhitespace(t *testing.T) {
	got := DerivePlainText("<p>tail</p><br><br>")
	assert.Equal(t, "tail", got)
	assert.Equal(t, got, strings.TrimSpace(got))
}
