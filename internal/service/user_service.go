package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"blango/internal/featureflags"
	"blango/internal/filters"
	"blango/internal/models"
	"blango/internal/observability"
	"blango/internal/repository"
	"blango/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// User-facing messages.
const (
	MsgBadCredentials     = "Unable to log in with provided credentials."
	MsgActivationInvalid  = "activation key invalid or expired"
	MsgAlreadyActivated   = "account already activated"
	MsgRegistrationClosed = "Registration is currently closed."

	activationPurpose = "activation"
	nameMaxLength     = 150
)

// passwordCost is lowered by tests.
var passwordCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash stored in users.password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// UserServiceConfig carries the settings the account flows depend on.
type UserServiceConfig struct {
	Secret         string
	BaseURL        string
	ActivationDays int
}

type UserService struct {
	userRepo    repository.UserRepository
	profileRepo repository.ProfileRepository
	mailer      Mailer
	flags       *featureflags.Manager
	cfg         UserServiceConfig
	logger      *slog.Logger
	now         func() time.Time
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type CreateUserInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	IsStaff     bool
	IsSuperuser bool
}

type UpdateProfileInput struct {
	UserID    uint
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
}

func NewUserService(
	userRepo repository.UserRepository,
	profileRepo repository.ProfileRepository,
	mailer Mailer,
	flags *featureflags.Manager,
	cfg UserServiceConfig,
	logger *slog.Logger,
) *UserService {
	if cfg.ActivationDays <= 0 {
		cfg.ActivationDays = 7
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		mailer:      mailer,
		flags:       flags,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.userRepo.GetByEmail(ctx, email)
}

func (s *UserService) List(ctx context.Context, page filters.Page) ([]models.User, int64, error) {
	return s.userRepo.List(ctx, page)
}

func validateNames(errs models.FieldErrors, first, last string) {
	if utf8.RuneCountInString(first) > nameMaxLength {
		errs.Add("first_name", fmt.Sprintf("Ensure this field has no more than %d characters.", nameMaxLength))
	}
	if utf8.RuneCountInString(last) > nameMaxLength {
		errs.Add("last_name", fmt.Sprintf("Ensure this field has no more than %d characters.", nameMaxLength))
	}
}

// Register creates an inactive account and mails its activation link.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	ctx, end := observability.StartSpan(ctx, "UserService.Register")
	var err error
	defer func() { end(err) }()

	if !s.flags.Enabled(featureflags.RegistrationOpen, 0) {
		err = models.NewForbiddenError(MsgRegistrationClosed)
		return nil, err
	}

	errs := models.FieldErrors{}
	email := models.NormalizeEmail(in.Email)
	if vErr := validation.ValidateEmail(email); vErr != nil {
		errs.Add("email", vErr.Error())
	}
	if vErr := validation.ValidatePassword(in.Password, email); vErr != nil {
		errs.Add("password", vErr.Error())
	}
	validateNames(errs, in.FirstName, in.LastName)
	if _, ok := errs["email"]; !ok {
		if _, lookupErr := s.userRepo.GetByEmail(ctx, email); lookupErr == nil {
			errs.Add("email", repository.MsgEmailTaken)
		} else if !models.IsCode(lookupErr, models.CodeNotFound) {
			err = lookupErr
			return nil, err
		}
	}
	if err = errs.Err(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{
		Email:      email,
		Password:   hash,
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		IsActive:   false,
		DateJoined: s.now(),
	}
	if err = s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	if _, err = s.profileRepo.GetOrCreate(ctx, user.ID); err != nil {
		return nil, err
	}

	key, err := s.ActivationKey(user)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if mailErr := s.mailer.Send(ctx, s.activationMessage(user, key)); mailErr != nil {
		// The account stays inactive and is swept if the user never activates.
		s.logger.ErrorContext(ctx, "activation mail failed",
			slog.Uint64("user_id", uint64(user.ID)),
			slog.String("error", mailErr.Error()),
		)
	}
	return user, nil
}

func (s *UserService) activationMessage(user *models.User, key string) Message {
	link := fmt.Sprintf("%s/accounts/activate/%s/", strings.TrimRight(s.cfg.BaseURL, "/"), key)
	body := fmt.Sprintf(
		"Hello %s,\n\nActivate your Blango account within %d days by opening:\n\n%s\n",
		user.DisplayName(), s.cfg.ActivationDays, link,
	)
	return Message{
		Kind:    MailActivation,
		To:      user.Email,
		Subject: "Activate your Blango account",
		Body:    body,
	}
}

type activationClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// ActivationKey signs a key that expires ACCOUNT_ACTIVATION_DAYS after the user joined.
func (s *UserService) ActivationKey(user *models.User) (string, error) {
	claims := activationClaims{
		Purpose: activationPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(user.DateJoined),
			ExpiresAt: jwt.NewNumericDate(user.ActivationDeadline(s.cfg.ActivationDays)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
}

// Activate marks the account named by key active.
func (s *UserService) Activate(ctx context.Context, key string) (*models.User, error) {
	claims := &activationClaims{}
	token, err := jwt.ParseWithClaims(key, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.Purpose != activationPurpose {
		return nil, models.NewValidationError(MsgActivationInvalid)
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil {
		return nil, models.NewValidationError(MsgActivationInvalid)
	}

	user, err := s.userRepo.GetByID(ctx, uint(id))
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewValidationError(MsgActivationInvalid)
		}
		return nil, err
	}
	if user.IsActive {
		return nil, models.NewValidationError(MsgAlreadyActivated)
	}
	user.IsActive = true
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials of an active account and records the login.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	errs := models.FieldErrors{}
	if strings.TrimSpace(email) == "" {
		errs.Add("email", "This field may not be blank.")
	}
	if password == "" {
		errs.Add("password", "This field may not be blank.")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewValidationError(MsgBadCredentials)
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil || !user.IsActive {
		return nil, models.NewValidationError(MsgBadCredentials)
	}

	now := s.now()
	if err := s.userRepo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now
	return user, nil
}

// CleanupInactive deletes accounts that were never activated within the
// activation window. Authors of posts are kept.
func (s *UserService) CleanupInactive(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-time.Duration(s.cfg.ActivationDays) * 24 * time.Hour)
	users, err := s.userRepo.ListInactiveJoinedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, u := range users {
		if err := s.userRepo.Delete(ctx, u.ID); err != nil {
			if models.IsCode(err, models.CodeProtected) {
				s.logger.WarnContext(ctx, "skipping inactive author",
					slog.Uint64("user_id", uint64(u.ID)),
					slog.String("email", u.Email),
				)
				continue
			}
			return deleted, fmt.Errorf("delete inactive user %d: %w", u.ID, err)
		}
		deleted++
		observability.InactiveUsersDeleted.Inc()
	}
	return deleted, nil
}

// CreateUser is the administrative path. The account is active immediately.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	errs := models.FieldErrors{}
	email := models.NormalizeEmail(in.Email)
	if err := validation.ValidateEmail(email); err != nil {
		errs.Add("email", err.Error())
	}
	if err := validation.ValidatePassword(in.Password, email); err != nil {
		errs.Add("password", err.Error())
	}
	validateNames(errs, in.FirstName, in.LastName)
	if in.IsSuperuser && !in.IsStaff {
		errs.Add("is_staff", "Superuser must have is_staff=True.")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{
		Email:       email,
		Password:    hash,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		IsActive:    true,
		IsStaff:     in.IsStaff,
		IsSuperuser: in.IsSuperuser,
		DateJoined:  s.now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	if _, err := s.profileRepo.GetOrCreate(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateSuperuser creates an active account with staff and superuser set.
func (s *UserService) CreateSuperuser(ctx context.Context, email, password string) (*models.User, error) {
	return s.CreateUser(ctx, CreateUserInput{Email: email, Password: password, IsStaff: true, IsSuperuser: true})
}

// SetStaff promotes or demotes a user. Demoting also clears superuser.
func (s *UserService) SetStaff(ctx context.Context, id uint, staff bool) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.IsStaff = staff
	if !staff {
		user.IsSuperuser = false
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, id uint) error {
	return s.userRepo.Delete(ctx, id)
}

// Profile returns the user with an author profile, creating an empty one if needed.
func (s *UserService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Profile == nil {
		profile, err := s.profileRepo.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}
		user.Profile = profile
	}
	return user, nil
}

// UpdateProfile changes names and biography.
func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.Profile(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	errs := models.FieldErrors{}
	first, last := user.FirstName, user.LastName
	if in.FirstName != nil {
		first = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		last = strings.TrimSpace(*in.LastName)
	}
	validateNames(errs, first, last)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	user.FirstName, user.LastName = first, last
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	if in.Bio != nil {
		user.Profile.Bio = *in.Bio
		if err := s.profileRepo.Update(ctx, user.Profile); err != nil {
			return nil, err
		}
	}
	return user, nil
}
