package listener

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/errs"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	assert.NoError(t, verifySignature("secret", sign("secret", body), body))
}

func TestVerifySignatureMismatch(t *testing.T) {
	body := []byte(`{}`)
	err := verifySignature("secret", sign("wrong-secret", body), body)
	require.Error(t, err)
	assert.Equal(t, errs.KindPermissionDenied, errs.KindOf(err))
}

func TestVerifySignatureTamperedBody(t *testing.T) {
	header := sign("secret", []byte(`{"a":1}`))
	err := verifySignature("secret", header, []byte(`{"a":2}`))
	assert.Error(t, err)
}

func TestVerifySignatureMissingHeader(t *testing.T) {
	assert.Error(t, verifySignature("secret", "", []byte(`{}`)))
}

func TestVerifySignatureMalformedDigest(t *testing.T) {
	assert.Error(t, verifySignature("secret", "sha256=not-hex", []byte(`{}`)))
}

func TestVerifySignatureNoSecretConfigured(t *testing.T) {
	body := []byte(`{}`)
	err := verifySignature("", sign("", body), body)
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidConfig, errs.KindOf(err))
}

func TestPushedBranch(t *testing.T) {
	assert.Equal(t, "main", pushedBranch([]byte(`{"ref":"refs/heads/main"}`)))
	assert.Equal(t, "feat/x", pushedBranch([]byte(`{"ref":"refs/heads/feat/x"}`)))
	// Tag pushes and non-push payloads carry no branch.
	assert.Equal(t, "", pushedBranch([]byte(`{"ref":"refs/tags/v1.0.0"}`)))
	assert.Equal(t, "", pushedBranch([]byte(`{"action":"opened"}`)))
	assert.Equal(t, "", pushedBranch([]byte(`not json`)))
}
