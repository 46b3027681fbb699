package domain

import (
	"encoding/base64"
	"fmt"
)

// EncodeText turns plaintext into the stored form of a text message: base64 of its UTF-8 bytes.
//
// This is obfuscation for transport and storage, not encryption. Anyone holding the stored
// content can read it.
func EncodeText(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// DecodeText reverses EncodeText.
func DecodeText(encoded string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode text content: %w", err)
	}
	return string(b), nil
}
