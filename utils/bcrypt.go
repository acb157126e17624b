package utils

import (
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength mirrors the min=8 tag on user inputs.
const MinPasswordLength = 8

// passwordCost reads BCRYPT_COST so tests and seed tools can hash cheaply.
func passwordCost() int {
	cost, err := strconv.Atoi(os.Getenv("BCRYPT_COST"))
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return cost
}

func HashPassword(s string) ([]byte, error) {
	if len(s) < MinPasswordLength {
		return nil, NewValidationError("password must be at least %d characters", MinPasswordLength)
	}
	return bcrypt.GenerateFromPassword([]byte(s), passwordCost())
}

func ComparePassword(hashed string, normal string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(normal)); err != nil {
		return NewValidationError("invalid username or password")
	}
	return nil
}
