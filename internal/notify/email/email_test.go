package email

import (
	"testing"
	"time"

	"github.com/jon4hz/chartwise/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePasswordResetBody(t *testing.T) {
	body, err := generateBody("reset_password.html", PasswordReset{
		UserEmail: "ann@example.com",
		UserName:  "Ann",
		ResetURL:  "http://localhost:3000/reset-password/abc123",
		ExpiresIn: time.Hour,
	})
	require.NoError(t, err)

	assert.Contains(t, body, "Hi Ann,")
	assert.Contains(t, body, `href="http://localhost:3000/reset-password/abc123"`)
	assert.Contains(t, body, "expires in 60 minutes")
}

func TestGenerateBodyEscapesName(t *testing.T) {
	body, err := generateBody("reset_password.html", PasswordReset{UserName: "<script>", ResetURL: "http://x"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestDisabledServiceSendsNothing(t *testing.T) {
	s := New(&config.EmailConfig{Enabled: false})
	assert.False(t, s.Enabled())
	assert.NoError(t, s.SendPasswordReset(PasswordReset{UserEmail: "ann@example.com"}))
}
