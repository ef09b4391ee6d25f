package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize         = 16
	pbkdf2Iterations = 100_000
)

// ErrDecrypt 表示密钥错误或数据被篡改
var ErrDecrypt = errors.New("decrypt failed: wrong key or corrupted data")

// RandomString 生成指定长度的随机字符串（URL 安全，用于密钥、token 等）。
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:n], nil
}

// ----------------- AES-256-GCM 加密/解密（用于备份） -----------------

// deriveKey 用 PBKDF2-SHA256 从口令和盐派生 32 字节 key。
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aesgcm, nil
}

// EncryptAES 使用 AES-256-GCM 加密数据，返回 salt+nonce+ciphertext。
func EncryptAES(passphrase string, plaintext []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	aesgcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aesgcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	// 前面拼上 salt 和 nonce，解密时可以拆回来
	return aesgcm.Seal(out, nonce, plaintext, nil), nil
}

// DecryptAES 解密 EncryptAES 的输出。
func DecryptAES(passphrase string, data []byte) ([]byte, error) {
	if len(data) < saltSize {
		return nil, fmt.Errorf("cipher too short")
	}
	salt, rest := data[:saltSize], data[saltSize:]
	aesgcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	ns := aesgcm.NonceSize()
	if len(rest) < ns {
		return nil, fmt.Errorf("cipher too short")
	}
	nonce, ciphertext := rest[:ns], rest[ns:]

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
