package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"

	"camview/internal/constants"
)

var (
	cookieSigningKey []byte
	signingKeyOnce   sync.Once
)

func getCookieSigningKey() []byte {
	signingKeyOnce.Do(func() {
		cookieSigningKey = make([]byte, 32)
		if _, err := rand.Read(cookieSigningKey); err != nil {
			panic("failed to generate cookie signing key: " + err.Error())
		}
	})
	return cookieSigningKey
}

func sign(value string) string {
	mac := hmac.New(sha256.New, getCookieSigningKey())
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignCookieValue binds a token to this process so a forged cookie is
// rejected before the store is consulted.
func SignCookieValue(token string) string {
	return token + ":" + sign(token)
}

func VerifyCookieValue(cookieValue string) (string, bool) {
	idx := strings.LastIndexByte(cookieValue, ':')
	if idx <= 0 || idx >= len(cookieValue)-1 {
		return "", false
	}
	token, providedSig := cookieValue[:idx], cookieValue[idx+1:]

	if subtle.ConstantTimeCompare([]byte(providedSig), []byte(sign(token))) != 1 {
		return "", false
	}
	return token, true
}

// TokenFromRequest extracts and verifies the session token carried by the
// request cookie. It does not consult the store.
func TokenFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(constants.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return VerifyCookieValue(cookie.Value)
}

// NewCookie builds the session cookie for token.
func NewCookie(token string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    SignCookieValue(token),
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: constants.SessionCookieSameSite,
	}
}

// ExpiredCookie clears the session cookie on the client.
func ExpiredCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: constants.SessionCookieSameSite,
	}
}
