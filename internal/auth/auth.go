package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/commitkings/commitkings/internal/types"
	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	userIdClaim  = "user-id"
	roleClaim    = "role"
	orgCodeClaim = "org-code"
	expClaim     = "exp"

	DefaultTokenTTL = time.Hour * 24 * 7
)

// ErrUnauthorized is returned for any missing, malformed, expired or
// otherwise invalid credential. Callers never substitute a synthetic
// identity on failure.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the resolved result of a successful credential check.
type Identity struct {
	UserId  string
	Role    types.Role
	OrgCode string
}

// Verifier issues and validates bearer tokens against a single HMAC
// signing key.
type Verifier struct {
	signingKey []byte
}

func NewVerifier(signingKey []byte) (*Verifier, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("signing key cannot be empty")
	}
	return &Verifier{signingKey: signingKey}, nil
}

func (v *Verifier) IssueToken(user types.User, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim:  user.Id,
		roleClaim:    string(user.Role),
		orgCodeClaim: user.OrgCode,
		expClaim:     time.Now().Add(ttl).Unix(),
	})

	return token.SignedString(v.signingKey)
}

func (v *Verifier) VerifyToken(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrUnauthorized
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrUnauthorized
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return Identity{}, ErrUnauthorized
	}

	id := Identity{UserId: userId}
	if role, ok := claims[roleClaim].(string); ok {
		id.Role = types.Role(role)
	}
	if org, ok := claims[orgCodeClaim].(string); ok {
		id.OrgCode = org
	}

	return id, nil
}

func HashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func VerifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
