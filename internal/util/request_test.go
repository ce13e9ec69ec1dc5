package util

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:52314"
	require.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 70.41.3.18, 150.172.238.178")
	require.Equal(t, "203.0.113.5", ClientIP(r))
}

func TestMaskPhone(t *testing.T) {
	require.Equal(t, "+2010****16", MaskPhone("+201033832316"))
	require.Equal(t, "****", MaskPhone("+2010"))
}

func TestMaskNationalID(t *testing.T) {
	require.Equal(t, "29805*********", MaskNationalID("29805241234567"))
	require.Equal(t, "**************", MaskNationalID("298"))
}

func TestSanitizeInput(t *testing.T) {
	require.Equal(t, "12 Main St", SanitizeInput("  12 Main St  "))
	require.NotContains(t, SanitizeInput("<b>bold</b>"), "<b>")
}

func TestContainsSuspicious(t *testing.T) {
	require.True(t, ContainsSuspicious(`<script>alert(1)</script>`))
	require.False(t, ContainsSuspicious("14 October City, Giza"))
}
