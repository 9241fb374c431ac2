package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

const RoleAdmin = "admin"

// JwtCustomClaim identifies the caller of the ops endpoints.
type JwtCustomClaim struct {
	ID         int    `json:"id"`
	BusinessId string `json:"business_id"`
	Role       string `json:"role"`
	jwt.StandardClaims
}

func getJwtSecret() []byte {
	return []byte(os.Getenv("API_SECRET"))
}

func JwtGenerate(userID int, businessId string, role string) (string, error) {
	secret := getJwtSecret()
	if len(secret) == 0 {
		return "", errors.New("API_SECRET is not set")
	}
	tokenLifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || tokenLifespan <= 0 {
		tokenLifespan = 1
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID:         userID,
		BusinessId: businessId,
		Role:       role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(tokenLifespan)).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})
	return t.SignedString(secret)
}

func JwtValidate(token string) (*jwt.Token, error) {
	secret := getJwtSecret()
	if len(secret) == 0 {
		return nil, errors.New("API_SECRET is not set")
	}
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return secret, nil
	})
}
