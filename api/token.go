package api

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

func makeToken(claims *jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(viper.GetString("jwt.secret")))
}
