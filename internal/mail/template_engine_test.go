package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateServiceRender(t *testing.T) {
	ts := NewTemplateService()

	out, err := ts.Render("Hello {{ name }}!", map[string]interface{}{"name": "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Jane!", out)
}

func TestTemplateServiceConditionals(t *testing.T) {
	ts := NewTemplateService()

	tpl := "{% if vip %}Welcome back{% else %}Hello{% endif %}"
	out, err := ts.Render(tpl, map[string]interface{}{"vip": true})
	require.NoError(t, err)
	assert.Equal(t, "Welcome back", out)

	out, err = ts.Render(tpl, map[string]interface{}{"vip": false})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
}

func TestTemplateServiceDefaultFilter(t *testing.T) {
	ts := NewTemplateService()

	out, err := ts.Render(`Hi {{ first_name | default: "there" }}`, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out)

	out, err = ts.Render(`Hi {{ first_name | default: "there" }}`, map[string]interface{}{"first_name": "Sam"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Sam", out)
}

func TestTemplateServiceFilters(t *testing.T) {
	ts := NewTemplateService()

	out, err := ts.Render("{{ name | capitalize }}", map[string]interface{}{"name": "jane"})
	require.NoError(t, err)
	assert.Equal(t, "Jane", out)

	out, err = ts.Render("{{ email | urlencode }}", map[string]interface{}{"email": "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "a%40x.com", out)
}

func TestTemplateServiceParseError(t *testing.T) {
	ts := NewTemplateService()

	_, err := ts.Render("{% if %}", nil)
	require.Error(t, err)
}
