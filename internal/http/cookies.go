package http

import (
	"net/http"
	"strings"
	"time"

	"expenses/internal/auth"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

// CookieConfig controls the attributes of the session cookies.
type CookieConfig struct {
	Secure     bool
	SameSite   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c CookieConfig) sameSite() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (c CookieConfig) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	}
}

// session returns the cookies carrying pair.
func (c CookieConfig) session(pair auth.TokenPair) []*http.Cookie {
	return []*http.Cookie{
		c.cookie(accessTokenCookie, pair.AccessToken, int(c.AccessTTL.Seconds())),
		c.cookie(refreshTokenCookie, pair.RefreshToken, int(c.RefreshTTL.Seconds())),
	}
}

// cleared returns cookies that make the browser drop both tokens.
func (c CookieConfig) cleared() []*http.Cookie {
	return []*http.Cookie{
		c.cookie(accessTokenCookie, "", -1),
		c.cookie(refreshTokenCookie, "", -1),
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
