package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const actorKey = "actor"

// Claims — полезная нагрузка токена доступа.
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Actor переводит claims в пользователя домена. Неизвестная роль означает покупателя.
func (c Claims) Actor() domain.Actor {
	role := domain.RoleCustomer
	if domain.Role(c.Role) == domain.RoleAdmin {
		role = domain.RoleAdmin
	}
	return domain.Actor{UserID: c.UserID, Email: c.Email, Name: c.Name, Role: role}
}

var errUnauthenticated = echo.NewHTTPError(http.StatusUnauthorized, "Authentication credentials were not provided.")

// Authenticator проверяет Bearer-токены, подписанные HS256.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator создаёт проверку токенов с общим секретом.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

// Parse проверяет токен и возвращает пользователя.
func (a *Authenticator) Parse(token string) (domain.Actor, error) {
	var claims Claims
	if _, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return domain.Actor{}, err
	}
	if claims.UserID <= 0 {
		return domain.Actor{}, errors.New("token has no user_id")
	}
	return claims.Actor(), nil
}

// Issue подписывает токен для claims. Используется тестами и локальными утилитами.
func (a *Authenticator) Issue(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware требует валидный Bearer-токен и кладёт пользователя в контекст запроса.
func (a *Authenticator) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		scheme, token, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return errUnauthenticated
		}

		actor, err := a.Parse(strings.TrimSpace(token))
		if err != nil {
			loggerFrom(c).WithError(err).Debug("rejected access token")
			return echo.NewHTTPError(http.StatusUnauthorized, "Given token not valid for any token type")
		}

		c.Set(actorKey, actor)
		return next(c)
	}
}

func actorFrom(c echo.Context) domain.Actor {
	actor, _ := c.Get(actorKey).(domain.Actor)
	return actor
}
