package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"strings"
)

const credentialKeyEnv = "TS_CREDENTIALS_ENCRYPTION_KEY"
const credentialPrevKeyEnv = "TS_CREDENTIALS_ENCRYPTION_PREV_KEY"

type encryptedCredential struct {
	Enc   string `json:"enc"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// ProtectCredential encrypts one secret for storage. Without a configured
// key the value passes through unchanged, which keeps local development
// working against a plain database.
func ProtectCredential(label, value string) string {
	if value == "" {
		return value
	}
	gcm := loadPrimaryCredentialGCM()
	if gcm == nil {
		return value
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return value
	}
	ct := gcm.Seal(nil, nonce, []byte(value), []byte(strings.TrimSpace(strings.ToLower(label))))
	payload := encryptedCredential{
		Enc:   "aes-gcm-v1",
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(ct),
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return value
	}
	return string(out)
}

// RevealCredential decrypts a stored secret, trying the current key first
// and the previous one during rotation. Values that were never encrypted
// come back as-is.
func RevealCredential(label, value string) string {
	if value == "" {
		return value
	}
	var payload encryptedCredential
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return value
	}
	if payload.Enc != "aes-gcm-v1" || payload.Nonce == "" || payload.Data == "" {
		return value
	}
	nonce, err := base64.StdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return value
	}
	ct, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return value
	}
	for _, gcm := range loadCredentialGCMs() {
		pt, err := gcm.Open(nil, nonce, ct, []byte(strings.TrimSpace(strings.ToLower(label))))
		if err == nil {
			return string(pt)
		}
	}
	return value
}

func loadPrimaryCredentialGCM() cipher.AEAD {
	keyBytes := parseCredentialKey(strings.TrimSpace(os.Getenv(credentialKeyEnv)))
	if len(keyBytes) == 0 {
		return nil
	}
	return newGCM(keyBytes)
}

func loadCredentialGCMs() []cipher.AEAD {
	keys := []string{
		strings.TrimSpace(os.Getenv(credentialKeyEnv)),
		strings.TrimSpace(os.Getenv(credentialPrevKeyEnv)),
	}
	out := make([]cipher.AEAD, 0, 2)
	seen := map[string]struct{}{}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keyBytes := parseCredentialKey(key)
		if len(keyBytes) == 0 {
			continue
		}
		if gcm := newGCM(keyBytes); gcm != nil {
			out = append(out, gcm)
		}
	}
	return out
}

func parseCredentialKey(k string) []byte {
	if strings.TrimSpace(k) == "" {
		return nil
	}
	// Prefer base64 key. fallback to raw bytes.
	keyBytes, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		keyBytes = []byte(k)
	}
	// Normalize key sizes accepted by AES.
	switch len(keyBytes) {
	case 16, 24, 32:
		// keep
	default:
		if len(keyBytes) < 16 {
			return nil
		}
		if len(keyBytes) < 24 {
			keyBytes = keyBytes[:16]
		} else if len(keyBytes) < 32 {
			keyBytes = keyBytes[:24]
		} else {
			keyBytes = keyBytes[:32]
		}
	}
	return keyBytes
}

func newGCM(keyBytes []byte) cipher.AEAD {
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil
	}
	return gcm
}
