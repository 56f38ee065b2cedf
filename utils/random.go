package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strings"
)

const base62Charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// GenerateCode returns 2n uppercase hex characters.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateBase62 returns a uniformly random base62 string of the given length.
func GenerateBase62(length int) (string, error) {
	max := big.NewInt(int64(len(base62Charset)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = base62Charset[n.Int64()]
	}
	return string(out), nil
}

// GenerateTransferCode returns a uniformly random numeric bank-transfer
// reference code. Uniqueness is enforced by the payment store.
func GenerateTransferCode(length int) (string, error) {
	const charset = "0123456789"

	max := big.NewInt(int64(len(charset)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = charset[n.Int64()]
	}
	return string(code), nil
}
