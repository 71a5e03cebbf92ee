package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/pkg/config"
	"github.com/sealflow/sealflow-backend/pkg/errors"
)

// ReferenceClaims are the claims carried by a signing reference token. One
// token binds one signer to one contract; possession of the token is how a
// signer reaches their session.
type ReferenceClaims struct {
	ContractID string `json:"contract_id"`
	SignerID   string `json:"signer_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies signing reference tokens.
type TokenIssuer struct {
	secret  []byte
	issuer  string
	baseURL string
}

// NewTokenIssuer creates a token issuer from signing configuration.
func NewTokenIssuer(cfg config.SigningConfig) *TokenIssuer {
	return &TokenIssuer{
		secret:  []byte(cfg.TokenSecret),
		issuer:  cfg.TokenIssuer,
		baseURL: cfg.BaseURL,
	}
}

// Mint issues a signing reference for one signer. The token expires with the
// contract, so a stale link can never outlive the engagement.
func (t *TokenIssuer) Mint(c *domain.SignedContract, signer *domain.Signer) (string, error) {
	now := time.Now().UTC()
	claims := ReferenceClaims{
		ContractID: c.ID,
		SignerID:   signer.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   t.issuer,
			Subject:  signer.Email,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.New().String(),
		},
	}
	if c.Dates.Expires != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*c.Dates.Expires)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reference token: %w", err)
	}

	return signed, nil
}

// SigningURL builds the link a signer follows to open their session.
func (t *TokenIssuer) SigningURL(token string) string {
	return fmt.Sprintf("%s/sign?ref=%s", t.baseURL, token)
}

// Verify parses and validates a signing reference token.
func (t *TokenIssuer) Verify(tokenString string) (*ReferenceClaims, error) {
	claims := &ReferenceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Expired("signing reference")
		}
		return nil, errors.BadRequest("invalid signing reference")
	}
	if !token.Valid || claims.ContractID == "" || claims.SignerID == "" {
		return nil, errors.BadRequest("invalid signing reference")
	}

	return claims, nil
}
