// Package auth verifies bearer tokens and hands the rest of the service
// an authenticated Principal. Handlers and the order core act on the
// Principal only; identity fields in request bodies are ignored.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

type claims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Exp    int64  `json:"exp"`
}

// Verifier signs and verifies compact HMAC-SHA256 tokens:
// base64url(claims) "." base64url(mac).
type Verifier struct{ secret []byte }

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) mac(body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write(body)
	return h.Sum(nil)
}

func (v *Verifier) Sign(p Principal, ttl time.Duration) (string, error) {
	body, err := json.Marshal(claims{
		UserID: p.UserID,
		Role:   p.Role,
		Exp:    time.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(body) + "." + enc.EncodeToString(v.mac(body)), nil
}

func (v *Verifier) Verify(token string) (Principal, error) {
	part, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	enc := base64.RawURLEncoding
	body, err := enc.DecodeString(part)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	mac, err := enc.DecodeString(sig)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	if !hmac.Equal(mac, v.mac(body)) {
		return Principal{}, ErrInvalidToken
	}
	var c claims
	if err := json.Unmarshal(body, &c); err != nil {
		return Principal{}, ErrInvalidToken
	}
	if c.UserID == "" {
		return Principal{}, ErrInvalidToken
	}
	if time.Now().Unix() >= c.Exp {
		return Principal{}, ErrTokenExpired
	}
	return Principal{UserID: c.UserID, Role: c.Role}, nil
}
