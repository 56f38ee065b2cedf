package online

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

func (c *Client) setHeaders(req *http.Request, reqTxUUID string, body []byte) {
	now := c.now()
	nowUnix := now.Unix()

	req.Header.Set("Authorization", c.getAccessToken())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("merchantId", c.cfg.MerchantID)
	req.Header.Set("X-Client-Transaction-ID", reqTxUUID)
	req.Header.Set("X-Client-Transaction-Datetime", now.Format("2006-01-02T15:04:05.999Z07:00"))

	if body == nil {
		return
	}

	hash := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	signature := fmt.Sprintf("digest: %s\n(request-target): %s %s\n(created): %d\nx-client-transaction-id: %s",
		digest, strings.ToLower(req.Method), req.URL.Path, nowUnix, reqTxUUID)
	signature = base64.StdEncoding.EncodeToString(hmac256([]byte(c.cfg.HMACKey), []byte(signature)))
	signature = fmt.Sprintf(`keyId="%s",algorithm="hs2019",created=%d,headers="digest (request-target) (created) x-client-transaction-id",signature="%s"`,
		c.cfg.KeyID, nowUnix, signature)

	req.Header.Set("Digest", digest)
	req.Header.Set("Signature", signature)
}

func hmac256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// Sign returns the hex HMAC-SHA256 of body, as sent in webhook signatures.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(hmac256([]byte(secret), body))
}

// VerifySignature checks a webhook body against its hex signature.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
