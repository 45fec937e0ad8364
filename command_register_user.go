package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

// CreateUserCommand is the registration input
type CreateUserCommand struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Normalize trims every field and lower-cases the login identifiers
func (c CreateUserCommand) Normalize() CreateUserCommand {
	c.Username = NormalizeIdentifier(c.Username)
	c.Email = NormalizeIdentifier(c.Email)
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	return c
}

// Validate runs the field rules. Password strength is checked by the
// PasswordHasher during registration.
func (c CreateUserCommand) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(
			&c.Username,
			validation.Required,
			validation.Match(usernamePattern).Error("must be 3-30 letters, digits or underscores"),
		),
		validation.Field(
			&c.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(&c.Password, validation.Required),
		validation.Field(&c.FirstName, validation.Length(1, 50)),
		validation.Field(&c.LastName, validation.Length(1, 50)),
	)
}

// RegistrationService creates user accounts
type RegistrationService struct {
	users  UserStore
	hasher PasswordHasher
	events EventSink
	logger Logger
	now    func() time.Time
}

func NewRegistrationService(users UserStore, hasher PasswordHasher) *RegistrationService {
	return &RegistrationService{
		users:  users,
		hasher: hasher,
		events: noopEventSink{},
		logger: defLogger{},
		now:    time.Now,
	}
}

func (s *RegistrationService) WithLogger(logger Logger) *RegistrationService {
	s.logger = normalizeLogger(logger)
	return s
}

func (s *RegistrationService) WithEventSink(sink EventSink) *RegistrationService {
	s.events = normalizeEventSink(sink)
	return s
}

func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// RegisterUser validates the command, rejects taken usernames and emails,
// stores an active user and returns it without credentials.
func (s *RegistrationService) RegisterUser(ctx context.Context, cmd CreateUserCommand) (*User, error) {
	cmd = cmd.Normalize()

	if strings.TrimSpace(cmd.Password) == "" {
		return nil, ErrNoEmptyString
	}

	if err := cmd.Validate(); err != nil {
		return nil, validationError(err)
	}

	if !s.hasher.IsPasswordStrong(cmd.Password) {
		return nil, ErrWeakPassword
	}

	if err := s.ensureAvailable(ctx, cmd); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(cmd.Password)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Username:     cmd.Username,
		Email:        cmd.Email,
		PasswordHash: hash.Hash,
		Salt:         hash.Salt,
		FirstName:    cmd.FirstName,
		LastName:     cmd.LastName,
		IsActive:     true,
		CreatedAt:    truncate(s.now()),
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, ErrUserAlreadyExists
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "could not create user")
	}

	s.logger.Info("user registered", "user_id", created.ID, "username", created.Username)

	publishAsync(ctx, s.events, s.logger, UserCreatedEvent{
		UserID:    created.ID,
		Username:  created.Username,
		Email:     created.Email,
		Timestamp: truncate(s.now()),
	})

	public := created.ToPublic()
	return &public, nil
}

func (s *RegistrationService) ensureAvailable(ctx context.Context, cmd CreateUserCommand) error {
	taken, err := s.users.ExistsByUsername(ctx, cmd.Username)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to check username")
	}
	if taken {
		s.logger.Debug("registration rejected", "reason", "username taken")
		return ErrUserAlreadyExists
	}

	taken, err = s.users.ExistsByEmail(ctx, cmd.Email)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to check email")
	}
	if taken {
		s.logger.Debug("registration rejected", "reason", "email taken")
		return ErrUserAlreadyExists
	}

	return nil
}

func validationError(err error) error {
	fields := map[string]any{}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			fields[field] = ferr.Error()
		}
	}

	return errors.New("invalid registration data", errors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(errors.CodeBadRequest).
		WithMetadata(map[string]any{
			"fields": fields,
		})
}
