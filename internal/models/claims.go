package models

import "github.com/golang-jwt/jwt/v5"

// Claims defines the structure of the JWT claims issued to the moderator.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}
