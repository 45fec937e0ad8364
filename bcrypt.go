package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	saltLength        = 32
	minPasswordLength = 8
	maxPasswordLength = 128
	specialCharacters = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`
)

// BcryptHasher is the salted bcrypt PasswordHasher. The salted password is
// keyed through HMAC-SHA256 before bcrypt so long inputs are not silently
// truncated at bcrypt's 72 byte limit.
type BcryptHasher struct {
	cost int
}

var _ PasswordHasher = (*BcryptHasher)(nil)

// NewBcryptHasher returns a hasher using cost, or the package default when
// cost is outside bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the bcrypt work factor
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// HashPassword generates a random salt and hashes password with it
func (h *BcryptHasher) HashPassword(password string) (PasswordHash, error) {
	if password == "" {
		return PasswordHash{}, ErrNoEmptyString
	}

	salt, err := randomSalt()
	if err != nil {
		return PasswordHash{}, errors.Wrap(err, errors.CategoryInternal, "failed to generate salt")
	}

	hash, err := bcrypt.GenerateFromPassword(pepper(password, salt), h.cost)
	if err != nil {
		return PasswordHash{}, errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	return PasswordHash{Hash: string(hash), Salt: salt}, nil
}

// VerifyPassword reports whether password matches hash and salt
func (h *BcryptHasher) VerifyPassword(password, hash, salt string) bool {
	if password == "" || hash == "" || salt == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), pepper(password, salt)) == nil
}

// IsPasswordStrong requires 8 to 128 characters and at least three of upper
// case, lower case, digits and special characters.
func (h *BcryptHasher) IsPasswordStrong(password string) bool {
	return IsPasswordStrong(password)
}

// IsPasswordStrong is the strength policy used by BcryptHasher
func IsPasswordStrong(password string) bool {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength {
		return false
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialCharacters, r):
			special = true
		}
	}

	classes := 0
	for _, ok := range []bool{upper, lower, digit, special} {
		if ok {
			classes++
		}
	}
	return classes >= 3
}

func randomSalt() (string, error) {
	buf := make([]byte, saltLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func pepper(password, salt string) []byte {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}
