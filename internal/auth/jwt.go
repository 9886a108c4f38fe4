package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject = "sub"
	claimAccount = "business_account"
)

// JWTMiddleware returns a JWT auth middleware for HS256 bearer tokens.
// Tokens must come from the configured issuer and carry the configured
// audience; anything else is rejected before the handler runs.
func JWTMiddleware(secret, issuer, audience string, skipper middleware.Skipper) echo.MiddlewareFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	return echojwt.WithConfig(echojwt.Config{
		Skipper:     skipper,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, tokenString string) (any, error) {
			token, err := parser.Parse(tokenString, func(t *jwt.Token) (any, error) {
				return []byte(secret), nil
			})
			if err != nil {
				return nil, err
			}
			return token, nil
		},
	})
}

// AccountFromContext extracts the business account from JWT claims.
func AccountFromContext(c echo.Context) (string, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	if account := claimString(claims, claimAccount); account != "" {
		return account, nil
	}
	if account := claimString(claims, claimSubject); account != "" {
		return account, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "business account missing")
}

// GenerateToken creates a signed JWT scoped to one business account. Used
// by the token helper command and by tests.
func GenerateToken(account, secret, issuer, audience string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(account) == "" {
		return "", time.Time{}, fmt.Errorf("business account is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: account,
		claimAccount: account,
		"iss":        issuer,
		"aud":        audience,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	value, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
