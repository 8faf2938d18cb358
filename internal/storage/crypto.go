package storage

import "golang.org/x/crypto/bcrypt"

// HashToken creates a bcrypt hash of a bearer token for storage.
func HashToken(token string) (string, error) {
	// Use bcrypt cost 12
	hash, err := bcrypt.GenerateFromPassword([]byte(token), 12)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken checks if a token matches a bcrypt hash.
func VerifyToken(token, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
}
