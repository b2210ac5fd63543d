package domain

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// User is an account owning exactly one board.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Onboarder seeds a new owner's board.
type Onboarder interface {
	Onboard(ctx context.Context, ownerID string) ([]Column, error)
}

// UserService registers and authenticates accounts.
type UserService struct {
	st     UserStore
	boards Onboarder
	cost   int
	now    func() time.Time
	newID  func() string
}

// NewUserService creates a UserService. boards may be nil.
func NewUserService(st UserStore, boards Onboarder) *UserService {
	return &UserService{
		st:     st,
		boards: boards,
		cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and seeds its default board.
func (s *UserService) Register(ctx context.Context, email, password string) (User, error) {
	email = NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return User{}, invalid("email", "must be a valid email address")
	}
	if len(password) < minPasswordLength {
		return User{}, invalid("password", "must be at least %d characters long", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{ID: s.newID(), Email: email, PasswordHash: hash, CreatedAt: s.now()}
	if err := s.st.InsertUser(ctx, u); err != nil {
		return User{}, err
	}
	if s.boards != nil {
		if _, err := s.boards.Onboard(ctx, u.ID); err != nil {
			log.WithField("user", u.ID).WithError(err).Error("seed default board failed")
		}
	}
	log.WithField("user", u.ID).Info("user registered")
	return u, nil
}

// Login returns the account for valid credentials and ErrUnauthorized otherwise.
func (s *UserService) Login(ctx context.Context, email, password string) (User, error) {
	u, err := s.st.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrUnauthorized
	}
	return *u, nil
}
