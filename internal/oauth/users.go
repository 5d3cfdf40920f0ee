package oauth

import (
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the "simple user store" spec.md 4.7's /oauth/login
// validates credentials against. Grounded on the teacher's
// bcrypt.CompareHashAndPassword / HashPassword pair in
// internal/plugins/auth/jwt.go.
type UserStore struct {
	users map[string]string // username -> bcrypt hash
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]string)}
}

// AddUser hashes and stores a password, overwriting any existing user.
func (s *UserStore) AddUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.users[username] = string(hash)
	return nil
}

// Authenticate reports whether username/password is a valid pair.
func (s *UserStore) Authenticate(username, password string) bool {
	hash, ok := s.users[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
