package auth

import "cosmossdk.io/errors"

var (
	ErrInvalidCredentials = errors.Register("auth", 1, "invalid username or password")
	ErrUserExists         = errors.Register("auth", 2, "user already exists")
	ErrHashFailed         = errors.Register("auth", 3, "password hash failed")
)
