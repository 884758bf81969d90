// Package account manages logins, households, user roles and push device registrations.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/audit"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/jwtutil"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminOnly          = errors.New("only administrators can manage accounts")
	ErrUserNotFound       = errors.New("user not found")
	ErrHouseholdNotFound  = errors.New("household not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("already exists")
)

// Session is the result of a successful login.
type Session struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// NewUser describes an account created by an admin.
type NewUser struct {
	Username    string     `json:"username"`
	Password    string     `json:"password"`
	Email       *string    `json:"email,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Role        model.Role `json:"role"`
	HouseholdID *uint      `json:"household_id,omitempty"`
}

// UserUpdate changes a user's role and household. Nil fields are left alone;
// ClearHousehold detaches the user from any household.
type UserUpdate struct {
	Role           *model.Role `json:"role,omitempty"`
	HouseholdID    *uint       `json:"household_id,omitempty"`
	ClearHousehold bool        `json:"clear_household,omitempty"`
}

// Service owns user and household records.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	tokens   *jwtutil.JWTUtil
	recorder *audit.Recorder
	cost     int
}

// NewService creates an account service. tokens may be nil when logins are not served.
func NewService(db *gorm.DB, log *zap.Logger, tokens *jwtutil.JWTUtil) *Service {
	return &Service{
		db:       db,
		log:      log,
		tokens:   tokens,
		recorder: audit.NewRecorder(db),
		cost:     bcrypt.DefaultCost,
	}
}

// Authenticate checks a username and password and issues a signed token.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	defer prometheus.TrackDBOperation("login")(time.Now())

	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Info("Login for unknown user", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.log.Info("Invalid password", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	if s.tokens == nil {
		return nil, errors.New("token issuer not configured")
	}
	token, err := s.tokens.GenerateToken(user.ID, user.Username, string(user.Role), user.HouseholdID)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	s.log.Info("User logged in",
		zap.Uint("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return &Session{Token: token, User: user}, nil
}

// Load returns the current record for a user id. The auth middleware resolves the requester
// through it so role changes take effect on the next request.
func (s *Service) Load(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}

// CreateHousehold registers a flat.
func (s *Service) CreateHousehold(ctx context.Context, requester model.User, flatNumber, name string) (*model.Household, error) {
	if requester.Role != model.RoleAdmin {
		return nil, ErrAdminOnly
	}
	flatNumber = strings.TrimSpace(flatNumber)
	if flatNumber == "" {
		return nil, fmt.Errorf("%w: flat_number is required", ErrInvalidInput)
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&model.Household{}).Where("flat_number = ?", flatNumber).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check household: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("household %s %w", flatNumber, ErrConflict)
	}

	h := model.Household{FlatNumber: flatNumber, Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(&h).Error; err != nil {
		return nil, fmt.Errorf("create household: %w", err)
	}
	s.log.Info("Household created", zap.Uint("household_id", h.ID), zap.String("flat_number", h.FlatNumber))
	return &h, nil
}

// ListUsers returns every user with their household. Admin only.
func (s *Service) ListUsers(ctx context.Context, requester model.User) ([]model.User, error) {
	if requester.Role != model.RoleAdmin {
		return nil, ErrAdminOnly
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Preload("Household").Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CreateUser adds an account. Admin only.
func (s *Service) CreateUser(ctx context.Context, requester model.User, in NewUser) (*model.User, error) {
	if requester.Role != model.RoleAdmin {
		return nil, ErrAdminOnly
	}

	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if in.Role == "" {
		in.Role = model.RoleResident
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	if in.HouseholdID != nil {
		if err := s.householdExists(ctx, *in.HouseholdID); err != nil {
			return nil, err
		}
	}

	var taken int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", in.Username).Count(&taken).Error; err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken > 0 {
		return nil, fmt.Errorf("username %s %w", in.Username, ErrConflict)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		Username:    in.Username,
		Password:    string(hashed),
		Email:       in.Email,
		Phone:       in.Phone,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Role:        in.Role,
		HouseholdID: in.HouseholdID,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("User created",
		zap.Uint("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.Uint("created_by", requester.ID))
	return &user, nil
}

// UpdateUser changes role and household. A role change is recorded as a ROLE_CHANGE event
// in the same transaction.
func (s *Service) UpdateUser(ctx context.Context, requester model.User, id uint, in UserUpdate) (*model.User, error) {
	if requester.Role != model.RoleAdmin {
		return nil, ErrAdminOnly
	}
	if in.Role != nil && !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *in.Role)
	}
	if in.HouseholdID != nil {
		if err := s.householdExists(ctx, *in.HouseholdID); err != nil {
			return nil, err
		}
	}

	var updated model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		updates := map[string]any{}
		previous := user.Role
		if in.Role != nil && *in.Role != user.Role {
			updates["role"] = *in.Role
		}
		switch {
		case in.ClearHousehold:
			updates["household_id"] = nil
		case in.HouseholdID != nil:
			updates["household_id"] = *in.HouseholdID
		}
		if len(updates) > 0 {
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return err
			}
		}

		if _, changed := updates["role"]; changed {
			if _, err := s.recorder.Record(tx, audit.Entry{
				Type:          model.EventRoleChange,
				ActorID:       &requester.ID,
				SubjectUserID: &user.ID,
				Payload:       map[string]any{"from": string(previous), "to": string(*in.Role)},
			}); err != nil {
				return err
			}
		}

		return tx.Preload("Household").First(&updated, id).Error
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}

	s.log.Info("User updated",
		zap.Uint("user_id", updated.ID),
		zap.String("role", string(updated.Role)),
		zap.Uint("updated_by", requester.ID))
	return &updated, nil
}

// RegisterDevice records a push token for the requester. Registering the same token twice
// is a no-op; a token seen on another account moves to the requester.
func (s *Service) RegisterDevice(ctx context.Context, requester model.User, token, platform string) (*model.DeviceToken, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}

	var device model.DeviceToken
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("token = ?", token).First(&device).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			device = model.DeviceToken{UserID: requester.ID, Token: token, Platform: platform}
			created = true
			return tx.Create(&device).Error
		}
		if err != nil {
			return err
		}
		if device.UserID == requester.ID {
			return nil
		}
		device.UserID = requester.ID
		if platform != "" {
			device.Platform = platform
		}
		return tx.Save(&device).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("register device: %w", err)
	}

	if created {
		s.log.Info("Device registered", zap.Uint("user_id", requester.ID), zap.String("platform", device.Platform))
	}
	return &device, created, nil
}

// Tokens returns the push tokens of the given users.
func (s *Service) Tokens(ctx context.Context, userIDs []uint) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var tokens []string
	err := s.db.WithContext(ctx).Model(&model.DeviceToken{}).
		Where("user_id IN ?", userIDs).
		Order("id ASC").
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, fmt.Errorf("load device tokens: %w", err)
	}
	return tokens, nil
}

// UsersWithRole returns the ids of every user holding role.
func (s *Service) UsersWithRole(ctx context.Context, role model.Role) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("role = ?", role).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load %s users: %w", role, err)
	}
	return ids, nil
}

// HouseholdMembers returns the ids of the users living in a household.
func (s *Service) HouseholdMembers(ctx context.Context, householdID uint) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("household_id = ?", householdID).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load household %d members: %w", householdID, err)
	}
	return ids, nil
}

// FlatNumber returns the flat number of a household.
func (s *Service) FlatNumber(ctx context.Context, householdID uint) (string, error) {
	var h model.Household
	err := s.db.WithContext(ctx).Select("flat_number").First(&h, householdID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrHouseholdNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load household %d: %w", householdID, err)
	}
	return h.FlatNumber, nil
}

// EnsureAdmin creates the bootstrap admin when no user with that name exists.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		s.log.Warn("Admin bootstrap skipped, credentials not configured")
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin := model.User{Username: username, Password: string(hashed), Role: model.RoleAdmin}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	s.log.Info("Admin user created", zap.String("username", username))
	return nil
}

func (s *Service) householdExists(ctx context.Context, id uint) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Household{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check household: %w", err)
	}
	if n == 0 {
		return ErrHouseholdNotFound
	}
	return nil
}
