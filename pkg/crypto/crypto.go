package crypto

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

const passwordHashCost = 10

// HashPassword returns a bcrypt hash of the supplied password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateOTP produces a numeric one-time passcode of the given length.
// The first digit is 1-9 so the code never collapses to fewer digits.
func GenerateOTP(length int) (int, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return 0, err
	}

	code := int(buffer[0]%9) + 1
	for i := 1; i < length; i++ {
		code = code*10 + int(buffer[i]%10)
	}
	return code, nil
}
