//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// race builds are several times slower, keep hashing within test timeouts
	return bcrypt.DefaultCost
}
