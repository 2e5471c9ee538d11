package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatrelay/pkg/config"
	"chatrelay/pkg/timeutil"
)

const (
	tokenIssuer = "chatrelay"
	// TokenTTL bounds the lifetime of issued user tokens.
	TokenTTL = time.Hour
)

var ErrInvalidToken = errors.New("invalid user token")

// IssueToken returns an HS256 JWT whose subject is userID.
func IssueToken(userID, key string, ttl time.Duration) (string, time.Time, error) {
	now := timeutil.Now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyToken checks raw against every signing key and returns its subject.
func VerifyToken(raw string) (string, error) {
	for k := range config.GetSigningKeys() {
		key := []byte(k)
		claims := &jwt.RegisteredClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(timeutil.Now),
		)
		if err != nil || !tok.Valid {
			continue
		}
		if validateUser(claims.Subject) != nil {
			return "", ErrInvalidToken
		}
		return claims.Subject, nil
	}
	return "", ErrInvalidToken
}
