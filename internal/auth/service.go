package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"tripsync/internal/config"
	"tripsync/internal/models"
)

// Service is the identity-verification step in front of the relay. Tokens
// are minted elsewhere (the account service); this side only checks the
// signature and lifts the trusted identity claims out.
type Service struct {
	cfg *config.Config
}

func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// VerifyToken validates an HS256 token and returns the identity it
// asserts. Any parse, signature, or expiry failure is an error; a token
// without a uid claim is refused as well.
func (s *Service) VerifyToken(tokenString string) (*models.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.JWT.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	uid, _ := (*claims)["uid"].(string)
	if uid == "" {
		return nil, fmt.Errorf("token missing uid claim")
	}

	displayName, _ := (*claims)["display_name"].(string)
	photoURL, _ := (*claims)["photo_url"].(string)
	email, _ := (*claims)["email"].(string)

	return &models.Identity{
		UID:         uid,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		Email:       email,
	}, nil
}
