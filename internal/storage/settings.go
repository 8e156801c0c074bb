package storage

import (
	"context"

	"github.com/bauset/marcador/internal/models"
)

// GetSetting returns the value for key, or def if unset.
func (s *Service) GetSetting(key, def string) string {
	setting := s.records.SettingByKey.Get(key)
	if setting == nil {
		return def
	}
	return setting.Value
}

// GetSettings returns all settings as a key/value map.
func (s *Service) GetSettings() map[string]string {
	out := map[string]string{}
	for setting := range s.records.Settings.All() {
		out[setting.Key] = setting.Value
	}
	return out
}

// SetSetting upserts a setting by key.
func (s *Service) SetSetting(ctx context.Context, key, value string) (*models.Setting, error) {
	if key == "" {
		return nil, models.NewError(models.KindValidationFailure, "setting key is required")
	}
	setting, err := s.records.PutSetting(key, value)
	if err != nil {
		return nil, err
	}
	s.commit(ctx, "set "+key)
	return setting, nil
}
