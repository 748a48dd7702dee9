package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAESSecretProviderRoundtrip(t *testing.T) {
	sp, err := NewAESSecretProvider("team-passphrase-2024")
	assert.NoError(t, err)

	ciphertext, err := sp.Encrypt("sk-or-v1-abcdef")
	assert.NoError(t, err)
	assert.NotEqual(t, "sk-or-v1-abcdef", ciphertext)

	plaintext, err := sp.Decrypt(ciphertext)
	assert.NoError(t, err)
	assert.Equal(t, "sk-or-v1-abcdef", plaintext)
}

func TestAESSecretProviderNonceUnique(t *testing.T) {
	sp, err := NewAESSecretProvider("team-passphrase-2024")
	assert.NoError(t, err)

	// 随机 nonce：同一明文两次加密结果不同
	c1, err := sp.Encrypt("same-value")
	assert.NoError(t, err)
	c2, err := sp.Encrypt("same-value")
	assert.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}

func TestAESSecretProviderWrongKey(t *testing.T) {
	sp1, _ := NewAESSecretProvider("passphrase-one")
	sp2, _ := NewAESSecretProvider("passphrase-two")

	ciphertext, err := sp1.Encrypt("secret")
	assert.NoError(t, err)

	_, err = sp2.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestAESSecretProviderInvalidInput(t *testing.T) {
	_, err := NewAESSecretProvider("")
	assert.Error(t, err)

	sp, _ := NewAESSecretProvider("passphrase")
	_, err = sp.Decrypt("not-base64!!!")
	assert.Error(t, err)
	_, err = sp.Decrypt("c2hvcnQ=") // 合法 base64 但比 nonce 还短
	assert.Error(t, err)
}
