package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA-256 hashing for refresh tokens and fingerprints
    "crypto/subtle" // constant-time comparison for fingerprint hashes
    "encoding/hex"  // hex encoding functions
    "errors"        // sentinel errors for token parsing
    "time"          // expiry computation

    "github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens

    "github.com/dhruvindave007/janmitra/internal/model"
)

// AccessToken represents a signed HS256 JWT access token along with its
// expiry. The Token field contains the serialized JWT string. Access tokens
// are short-lived and carried in the Authorization header.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long-lived opaque token used to obtain new
// access tokens. Raw is returned to the client exactly once; the database
// stores only its SHA-256 hash.
type RefreshToken struct {
    Raw string    // raw token string returned to the client
    Exp time.Time // UTC expiration time
}

// Claims decoded out of a verified access token. Role is re-parsed against
// the closed role set on every request.
type Claims struct {
    UserID      uint64
    Role        model.Role
    IsAnonymous bool
}

// ErrInvalidToken is returned when a bearer token fails structural
// verification (bad signature, wrong algorithm, expired, malformed claims).
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT for a user. The claims carry
// the subject (user ID), role, anonymity flag, expiry and issued-at so the
// authenticator can gate requests cheaply before any store lookup.
func NewAccessToken(secret string, u model.User, ttlMin int) (AccessToken, error) {
    exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":  u.ID,
        "role": string(u.Role),
        "anon": u.IsAnonymous,
        "exp":  exp.Unix(),
        "iat":  time.Now().UTC().Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies the signature and expiry of a raw token string
// and extracts its claims. Any structural problem yields ErrInvalidToken;
// callers never learn which specific structural check failed.
func ParseAccessToken(secret, raw string) (Claims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    sub, ok := mc["sub"].(float64)
    if !ok || sub <= 0 {
        return Claims{}, ErrInvalidToken
    }
    roleStr, _ := mc["role"].(string)
    role, ok := model.ParseRole(roleStr)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    anon, _ := mc["anon"].(bool)
    return Claims{UserID: uint64(sub), Role: role, IsAnonymous: anon}, nil
}

// NewRefreshToken returns a cryptographically secure random token and its
// expiration time. The ttlDays parameter controls how many days the token
// stays valid.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
    raw, err := randomHex(48) // 48 bytes -> 96 hex chars
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{
        Raw: raw,
        Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
    }, nil
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a hex
// string. Only the hash is persisted so a database leak cannot be replayed
// into live sessions.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// HashFingerprint returns the SHA-256 hex digest of a raw device
// fingerprint. The raw fingerprint is never stored.
func HashFingerprint(fingerprint string) string {
    sum := sha256.Sum256([]byte(fingerprint))
    return hex.EncodeToString(sum[:])
}

// FingerprintMatches compares a raw fingerprint against a stored hash in
// constant time.
func FingerprintMatches(storedHash, fingerprint string) bool {
    computed := HashFingerprint(fingerprint)
    return subtle.ConstantTimeCompare([]byte(storedHash), []byte(computed)) == 1
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
