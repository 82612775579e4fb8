package authenv

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SecretHash computes the SECRET_HASH parameter for app clients that have a
// secret: base64(HMAC-SHA256(clientSecret, username + clientID)). It
// returns false when clientSecret is empty.
func SecretHash(username, clientID, clientSecret string) (string, bool) {
	if clientSecret == "" {
		return "", false
	}
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username))
	mac.Write([]byte(clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), true
}
