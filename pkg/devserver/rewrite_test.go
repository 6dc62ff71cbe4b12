package devserver

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	rule, err := ParseRule(DefaultRewrite)
	require.NoError(t, err)
	require.True(t, rule.Last)
	require.Equal(t, "/index.html", rule.Replacement)
	require.True(t, rule.matches("/components/button"))
	require.False(t, rule.matches("/assets/js/app.js"))

	rule, err = ParseRule(`^/a/(\d+)$ /b/$1 [R]`)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, rule.Redirect)
	require.Equal(t, "/b/42", rule.apply("/a/42"))

	rule, err = ParseRule(`!\.html$ - [T=text/plain]`)
	require.NoError(t, err)
	require.True(t, rule.Inverted)
	require.Equal(t, "text/plain", rule.ContentType)
	require.True(t, rule.matches("/readme"))
	require.Equal(t, "/readme", rule.apply("/readme"))

	for _, invalid := range []string{
		"",
		"^/only-pattern",
		"^/a /b [L] extra",
		"^/a /b L",
		"^/a /b [X]",
		"^/a /b [R=200]",
		"[ /b",
	} {
		_, err = ParseRule(invalid)
		require.Error(t, err, invalid)
	}
}
