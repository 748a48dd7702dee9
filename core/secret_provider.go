package core

// SecretProvider 凭证加解密接口
// 数据库中的 APICredential.KeyValue 经由它加密存储
type SecretProvider interface {
	// Encrypt 加密明文，返回可安全落库的字符串
	Encrypt(plaintext string) (string, error)
	// Decrypt 解密落库值，还原明文
	Decrypt(ciphertext string) (string, error)
}

// NoOpSecretProvider 明文直通实现
// 未配置 NOTEBOOKER_SECRET_KEY 时使用，仅适合本地开发
type NoOpSecretProvider struct{}

func (NoOpSecretProvider) Encrypt(plaintext string) (string, error)  { return plaintext, nil }
func (NoOpSecretProvider) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }
