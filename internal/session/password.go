package session

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// decoyHash is a bcrypt hash of a random string. Login attempts against
// unknown accounts verify the submitted password against this hash so the
// response time does not reveal whether the account exists.
const decoyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("session: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("session: password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func burnPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(decoyHash), []byte(password))
}
