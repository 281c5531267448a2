package app

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/pkg/common"
)

func (a *Application) checkSuper() {
	const superUsername = "admin"
	const defaultPassword = "openmerce"

	hashed, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Error("failed to hash default password", zap.Error(err))
		return
	}

	var user domain.SysUser
	err = a.gormDB.Where("username = ?", superUsername).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := a.gormDB.Create(&domain.SysUser{
			ID:        common.UUIDint64(),
			Username:  superUsername,
			Password:  string(hashed),
			Realname:  "administrator",
			Email:     "admin@localhost",
			Role:      domain.RoleAdmin,
			Status:    common.ENABLED,
			Remark:    "super",
			LastLogin: time.Now(),
		}).Error; err != nil {
			zap.L().Error("failed to create default super admin", zap.Error(err))
		} else {
			zap.L().Info("initialized default super admin account", zap.String("username", superUsername))
		}
		return
	case err != nil:
		zap.L().Error("failed to query super admin", zap.Error(err))
		return
	}

	resetPassword := strings.TrimSpace(user.Password) == ""
	resetRole := !strings.EqualFold(user.Role, domain.RoleAdmin)
	resetStatus := !strings.EqualFold(user.Status, common.ENABLED)

	if !resetPassword && !resetRole && !resetStatus {
		return
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if resetPassword {
		updates["password"] = string(hashed)
	}
	if resetRole {
		updates["role"] = domain.RoleAdmin
	}
	if resetStatus {
		updates["status"] = common.ENABLED
	}

	if err := a.gormDB.Model(&domain.SysUser{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to repair super admin account", zap.Error(err))
		return
	}

	zap.L().Warn("repaired default super admin account",
		zap.String("username", superUsername),
		zap.Bool("passwordReset", resetPassword),
		zap.Bool("roleReset", resetRole),
		zap.Bool("statusEnabled", resetStatus))
}

// defaultSettings are created once when missing.
var defaultSettings = []domain.SysConfig{
	{Sort: 1, Type: "system", Name: "default_currency", Value: "USD", Remark: "Currency code applied to new orders"},
	{Sort: 2, Type: "system", Name: "low_stock_cron", Value: "@daily", Remark: "Schedule of the low-stock scan job"},
	{Sort: 3, Type: "order", Name: "number_prefix", Value: "ORD", Remark: "Order number prefix"},
}

func (a *Application) checkSettings() {
	for _, setting := range defaultSettings {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? AND name = ?", setting.Type, setting.Name).
			Count(&count)

		if count == 0 {
			setting.ID = common.UUIDint64()
			if err := a.gormDB.Create(&setting).Error; err != nil {
				zap.L().Error("failed to create default setting",
					zap.String("key", setting.Type+"."+setting.Name),
					zap.Error(err))
			} else {
				zap.L().Info("initialized config",
					zap.String("key", setting.Type+"."+setting.Name),
					zap.String("default", setting.Value))
			}
		}
	}
}
