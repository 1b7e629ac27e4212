package services

import (
	"context"
	"errors"
	"strings"

	"github.com/orderledger/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for both unknown usernames and
	// wrong passwords; callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmptyUsername = errors.New("username is required")
	ErrEmptyPassword = errors.New("password is required")
)

// dummyPasswordHash is compared against when the username does not exist,
// so the unknown-user path costs a bcrypt comparison like the known-user
// path does. Hash of an unguessable throwaway string.
var dummyPasswordHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates account use-cases: registration and credential
// verification.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Register hashes the password and creates the account. The username unique
// constraint surfaces as store.ErrUsernameTaken.
func (s *UserService) Register(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return types.User{}, ErrEmptyUsername
	}
	if password == "" {
		return types.User{}, ErrEmptyPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		Username:     username,
		PasswordHash: string(hashed),
	})
}

// Verify checks the credentials and returns the matching user. Unknown
// username and wrong password both return ErrInvalidCredentials, and the
// unknown-username path still performs a bcrypt comparison so response
// timing does not reveal whether the account exists.
func (s *UserService) Verify(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, ErrInvalidCredentials
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if isNotFound(err) {
			_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(password))
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}
