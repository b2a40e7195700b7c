package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core"
)

const contextTokenKey = "userToken"

func jwtConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// Claims represents the identity claims transmitted via a JWT issued by the identity provider.
type Claims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Province string `json:"province,omitempty"`
	Ward     string `json:"ward,omitempty"`
	School   string `json:"school,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

// NewClaims returns the claims of id, valid for expiration.
func NewClaims(id core.Identity, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   id.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpiration).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: id.Username,
		Email:    id.Email,
		Province: id.Province,
		Ward:     id.Ward,
		School:   id.School,
		IsAdmin:  id.IsAdmin,
	}
}

func (c Claims) Identity() core.Identity {
	return core.Identity{
		ID:       c.Subject,
		Username: c.Username,
		Email:    c.Email,
		Province: c.Province,
		Ward:     c.Ward,
		School:   c.School,
		IsAdmin:  c.IsAdmin,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	conf := jwtConfig(secretKey)
	token := jwt.NewWithClaims(jwt.GetSigningMethod(conf.SigningMethod), claims)

	ss, err := token.SignedString(conf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextIdentity(ctx echo.Context) (core.Identity, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Identity{}, err
	}
	if claims.Subject == "" {
		return core.Identity{}, errUnauthorized
	}
	return claims.Identity(), nil
}
