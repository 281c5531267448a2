package app

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gorm.io/gorm"

	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/pkg/common"
)

// SettingsManager reads and writes runtime settings stored in the
// sys_config table.
type SettingsManager struct {
	db *gorm.DB
}

func NewSettingsManager(db *gorm.DB) *SettingsManager {
	return &SettingsManager{db: db}
}

func (m *SettingsManager) lookup(category, name string) (string, bool) {
	var row domain.SysConfig
	err := m.db.Where("type = ? AND name = ?", category, name).First(&row).Error
	if err != nil {
		return "", false
	}
	return row.Value, true
}

// GetString retrieves a string configuration value
func (m *SettingsManager) GetString(category, name string) string {
	v, _ := m.lookup(category, name)
	return v
}

// GetInt64 retrieves an int64 configuration value
func (m *SettingsManager) GetInt64(category, name string) int64 {
	v, _ := m.lookup(category, name)
	return cast.ToInt64(v)
}

// GetBool retrieves a boolean configuration value
func (m *SettingsManager) GetBool(category, name string) bool {
	v, _ := m.lookup(category, name)
	return cast.ToBool(v)
}

// Set upserts one setting.
func (m *SettingsManager) Set(category, name, value string) error {
	var row domain.SysConfig
	err := m.db.Where("type = ? AND name = ?", category, name).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Wrap(m.db.Create(&domain.SysConfig{
			ID:    common.UUIDint64(),
			Type:  category,
			Name:  name,
			Value: value,
		}).Error, "create setting")
	case err != nil:
		return errors.Wrap(err, "load setting")
	}
	return errors.Wrap(m.db.Model(&domain.SysConfig{}).Where("id = ?", row.ID).
		Updates(map[string]interface{}{"value": value, "updated_at": time.Now()}).Error,
		"update setting")
}
