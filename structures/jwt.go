package structures

import (
	"github.com/golang-jwt/jwt"
	"github.com/viderstv/displaysync/errors"
)

// JwtDisplayPayload grants its holder the vsync events of one display.
type JwtDisplayPayload struct {
	Display string `json:"display"`
	Channel string `json:"channel"`
	jwt.StandardClaims
}

func EncodeJwt(claims jwt.Claims, key string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(key))
}

func DecodeJwt(claims jwt.Claims, key string, token string) error {
	tkn, err := jwt.ParseWithClaims(token, claims, func(tkn *jwt.Token) (interface{}, error) {
		if _, ok := tkn.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.ErrJwtTokenInvalid
		}

		return []byte(key), nil
	})
	if err != nil {
		return err
	}

	if !tkn.Valid {
		return errors.ErrJwtTokenInvalid
	}

	return nil
}
