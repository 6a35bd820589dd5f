package auth

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vicr123/entertaining-server/internal/models"
)

// Signer issues and verifies ed25519-signed identity tokens.
// It satisfies Resolver, so a gateway can accept its tokens directly.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expiry     time.Duration
}

// NewSigner generates a fresh key pair at runtime. Tokens do not survive a restart.
func NewSigner(expiry time.Duration) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Signer{privateKey: priv, publicKey: pub, expiry: expiry}, nil
}

// LoadSigner reads raw ed25519 keys from disk.
func LoadSigner(privatePath, publicPath string, expiry time.Duration) (*Signer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 key files have unexpected sizes (%d, %d)", len(privateKeyData), len(publicKeyData))
	}

	return &Signer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		expiry:     expiry,
	}, nil
}

// IssueToken signs a token with "sub" = user id plus the display fields.
func (s *Signer) IssueToken(ident models.Identity) (string, error) {
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(ident.UserID, 10),
		"name": ident.Username,
	}
	if ident.Picture != "" {
		claims["picture"] = ident.Picture
	}
	if s.expiry > 0 {
		claims["exp"] = time.Now().Add(s.expiry).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// ResolveToken verifies a token and returns the identity it carries.
// Anything that is not a valid token from this signer yields ErrInvalidToken.
func (s *Signer) ResolveToken(_ context.Context, tokenString string) (models.Identity, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, fmt.Errorf("%w: invalid jwt claims", ErrInvalidToken)
	}

	sub, _ := claims["sub"].(string)
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: bad sub %q", ErrInvalidToken, sub)
	}
	name, _ := claims["name"].(string)
	if name == "" {
		return models.Identity{}, fmt.Errorf("%w: missing name", ErrInvalidToken)
	}
	picture, _ := claims["picture"].(string)

	return models.Identity{UserID: userID, Username: name, Picture: picture}, nil
}
