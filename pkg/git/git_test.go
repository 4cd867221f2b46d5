package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneURL(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/api.git", CloneURL("acme/api", ""))
	assert.Equal(t, "https://gitlab.example.com/acme/api.git", CloneURL("acme/api", "gitlab.example.com"))
	// Full URLs pass through untouched.
	assert.Equal(t, "ssh://git@host/acme/api.git", CloneURL("ssh://git@host/acme/api.git", "github.com"))
}

func TestAuth(t *testing.T) {
	assert.Nil(t, auth(""))

	a := auth("ghp_secret")
	assert.Equal(t, "token", a.Username)
	assert.Equal(t, "ghp_secret", a.Password)
}
