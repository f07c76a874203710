package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		code   string
		hasKey bool
	}{
		{"query code", "http://localhost/cb?code=AQABAAIA&session_state=x", "AQABAAIA", true},
		{"second parameter", "http://localhost/cb?state=s&code=abc", "abc", true},
		{"trailing fragment", "http://localhost/cb?code=abc#_=_", "abc", true},
		{"trailing artifact", "http://localhost/cb?code=abc_=_", "abc", true},
		{"escaped code", "http://localhost/cb?code=a%2Fb", "a/b", true},
		{"no code", "https://login.microsoftonline.com/common/oauth2/authorize?client_id=x", "", false},
		{"code-like parameter", "http://localhost/cb?barcode=1", "", false},
		{"empty code", "http://localhost/cb?code=#x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := ExtractCode(tt.url)
			assert.Equal(t, tt.hasKey, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestExtractAuthorizationError(t *testing.T) {
	err := ExtractAuthorizationError("http://localhost/cb?error=access_denied&error_description=User+cancelled")
	require.NotNil(t, err)
	assert.Equal(t, "access_denied", err.Code)
	assert.Equal(t, "authorization failed: access_denied: User cancelled", err.Error())

	fragment := ExtractAuthorizationError("http://localhost/cb#error=login_required")
	require.NotNil(t, fragment)
	assert.Equal(t, "login_required", fragment.Code)

	assert.Nil(t, ExtractAuthorizationError("http://localhost/cb?code=abc"))
}
