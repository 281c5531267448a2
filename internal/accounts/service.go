package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/internal/errs"
	"github.com/openmerce/openmerce/pkg/common"
)

// Service manages administrative users and their roles.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

var validRoles = map[string]bool{
	domain.RoleAdmin:   true,
	domain.RoleManager: true,
	domain.RoleStaff:   true,
}

// UserInput carries user create/update fields. Password is plaintext
// on input and stored as a bcrypt hash.
type UserInput struct {
	Username string
	Password string
	Realname string
	Email    string
	Role     string
}

// CreateUser inserts an administrative account.
func (s *Service) CreateUser(ctx context.Context, in UserInput) (*domain.SysUser, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, errs.Validationf("username", "is required")
	}
	if len(in.Password) < 8 {
		return nil, errs.Validationf("password", "must be at least 8 characters")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, errs.Validationf("email", "is required")
	}
	if !validRoles[in.Role] {
		return nil, errs.Validationf("role", "unknown role %q", in.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	user := &domain.SysUser{
		ID:       common.UUIDint64(),
		Username: username,
		Password: string(hash),
		Realname: in.Realname,
		Email:    email,
		Role:     in.Role,
		Status:   common.ENABLED,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.SysUser{}).
			Where("username = ? OR email = ?", username, email).Count(&n).Error; err != nil {
			return errors.Wrap(err, "check username/email")
		}
		if n > 0 {
			return errors.Wrapf(errs.ErrUniquenessConflict, "username %q or email %q", username, email)
		}
		return errors.Wrap(tx.Create(user).Error, "create user")
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("user created", zap.String("username", username), zap.String("role", in.Role))
	return user, nil
}

// UpdateUser changes profile fields. Blank password keeps the current
// hash; a new one replaces it.
func (s *Service) UpdateUser(ctx context.Context, userID int64, in UserInput) (*domain.SysUser, error) {
	var user domain.SysUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "user %d", userID)
			}
			return errors.Wrap(err, "load user")
		}

		if in.Realname != "" {
			user.Realname = in.Realname
		}
		if email := strings.ToLower(strings.TrimSpace(in.Email)); email != "" && email != user.Email {
			var n int64
			if err := tx.Model(&domain.SysUser{}).
				Where("email = ? AND id <> ?", email, userID).Count(&n).Error; err != nil {
				return errors.Wrap(err, "check email")
			}
			if n > 0 {
				return errors.Wrapf(errs.ErrUniquenessConflict, "email %q", email)
			}
			user.Email = email
		}
		if in.Password != "" {
			if len(in.Password) < 8 {
				return errs.Validationf("password", "must be at least 8 characters")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
			if err != nil {
				return errors.Wrap(err, "hash password")
			}
			user.Password = string(hash)
		}
		return errors.Wrap(tx.Save(&user).Error, "update user")
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AssignRole changes a user's role.
func (s *Service) AssignRole(ctx context.Context, userID int64, role string) error {
	if !validRoles[role] {
		return errs.Validationf("role", "unknown role %q", role)
	}
	res := s.db.WithContext(ctx).Model(&domain.SysUser{}).
		Where("id = ?", userID).Update("role", role)
	if res.Error != nil {
		return errors.Wrap(res.Error, "assign role")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(errs.ErrNotFound, "user %d", userID)
	}
	return nil
}

// SetStatus enables or disables an account.
func (s *Service) SetStatus(ctx context.Context, userID int64, enabled bool) error {
	status := common.ENABLED
	if !enabled {
		status = common.DISABLED
	}
	res := s.db.WithContext(ctx).Model(&domain.SysUser{}).
		Where("id = ?", userID).Update("status", status)
	if res.Error != nil {
		return errors.Wrap(res.Error, "set status")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(errs.ErrNotFound, "user %d", userID)
	}
	return nil
}

// DeleteUser removes an account. The acting user is an explicit
// parameter; deleting your own account is refused.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID int64) error {
	if actorID == userID {
		return errs.ErrSelfDelete
	}
	res := s.db.WithContext(ctx).Delete(&domain.SysUser{}, userID)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete user")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(errs.ErrNotFound, "user %d", userID)
	}
	return nil
}

// Authenticate verifies credentials and stamps last_login.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.SysUser, error) {
	var user domain.SysUser
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(errs.ErrNotFound, "user %q", username)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load user")
	}
	if user.Status != common.ENABLED {
		return nil, errs.Validationf("status", "account disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, errs.Validationf("password", "invalid credentials")
	}

	now := time.Now()
	user.LastLogin = now
	_ = s.db.WithContext(ctx).Model(&domain.SysUser{}).
		Where("id = ?", user.ID).Update("last_login", now).Error
	return &user, nil
}
