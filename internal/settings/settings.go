// Package settings holds the platform wide settings record.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// Keys as stored in global_settings.
const (
	KeyCreditsPerVideo       = "credits_per_video"
	KeyMaxDurationSec        = "max_duration_sec"
	KeySupportedAspectRatios = "supported_aspect_ratios"
)

// Settings is the typed view over the key-value table. Missing keys take
// the defaults.
type Settings struct {
	CreditsPerVideo       int64    `json:"credits_per_video"`
	MaxDurationSec        int      `json:"max_duration_sec"`
	SupportedAspectRatios []string `json:"supported_aspect_ratios"`
}

func Defaults() Settings {
	return Settings{
		CreditsPerVideo:       10,
		MaxDurationSec:        30,
		SupportedAspectRatios: []string{"9:16", "1:1", "16:9"},
	}
}

// SupportsAspectRatio reports whether ratio is offered.
func (s Settings) SupportsAspectRatio(ratio string) bool {
	return slices.Contains(s.SupportedAspectRatios, ratio)
}

func (s Settings) Validate() error {
	fields := map[string]string{}
	if s.CreditsPerVideo <= 0 {
		fields[KeyCreditsPerVideo] = "must be greater than 0"
	}
	if s.MaxDurationSec <= 0 || s.MaxDurationSec > 600 {
		fields[KeyMaxDurationSec] = "must be between 1 and 600"
	}
	if len(s.SupportedAspectRatios) == 0 {
		fields[KeySupportedAspectRatios] = "must list at least one ratio"
	}
	for _, r := range s.SupportedAspectRatios {
		if !validRatio(r) {
			fields[KeySupportedAspectRatios] = fmt.Sprintf("invalid ratio %q", r)
			break
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid settings", fields)
	}
	return nil
}

func validRatio(r string) bool {
	w, h, ok := strings.Cut(r, ":")
	if !ok {
		return false
	}
	var a, b int
	if _, err := fmt.Sscanf(w+" "+h, "%d %d", &a, &b); err != nil {
		return false
	}
	return a > 0 && b > 0
}

// Patch carries the fields to change. Nil fields are left alone.
type Patch struct {
	CreditsPerVideo       *int64   `json:"credits_per_video"`
	MaxDurationSec        *int     `json:"max_duration_sec"`
	SupportedAspectRatios []string `json:"supported_aspect_ratios"`
}

type Service struct {
	tx    *database.TxManager
	audit *audit.Recorder
	log   *slog.Logger
}

func NewService(tx *database.TxManager, rec *audit.Recorder, log *slog.Logger) *Service {
	return &Service{tx: tx, audit: rec, log: log}
}

// Get loads the record. Values that fail to decode fall back to the default
// and are logged.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	var rows []models.GlobalSetting
	if err := s.tx.DB(ctx).Find(&rows).Error; err != nil {
		return Settings{}, database.TranslateError(err, "settings")
	}

	out := Defaults()
	for _, row := range rows {
		var err error
		switch row.Key {
		case KeyCreditsPerVideo:
			err = decode(row.Value, row.Key, &out.CreditsPerVideo)
		case KeyMaxDurationSec:
			err = decode(row.Value, row.Key, &out.MaxDurationSec)
		case KeySupportedAspectRatios:
			err = decode(row.Value, row.Key, &out.SupportedAspectRatios)
		default:
			continue
		}
		if err != nil {
			s.log.Warn("ignoring malformed setting", "key", row.Key, "error", err)
		}
	}
	return out, nil
}

// decode accepts a bare value or the legacy {"<key>": value} wrapper.
func decode(raw datatypes.JSON, key string, dst any) error {
	if err := json.Unmarshal(raw, dst); err == nil {
		return nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return err
	}
	inner, ok := wrapped[key]
	if !ok {
		return fmt.Errorf("setting %s: unexpected shape", key)
	}
	return json.Unmarshal(inner, dst)
}

// Update applies the patch and returns the resulting record.
func (s *Service) Update(ctx context.Context, patch Patch, by uuid.UUID) (Settings, error) {
	var out Settings
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.Get(ctx)
		if err != nil {
			return err
		}

		values := map[string]any{}
		if patch.CreditsPerVideo != nil {
			current.CreditsPerVideo = *patch.CreditsPerVideo
			values[KeyCreditsPerVideo] = current.CreditsPerVideo
		}
		if patch.MaxDurationSec != nil {
			current.MaxDurationSec = *patch.MaxDurationSec
			values[KeyMaxDurationSec] = current.MaxDurationSec
		}
		if patch.SupportedAspectRatios != nil {
			current.SupportedAspectRatios = patch.SupportedAspectRatios
			values[KeySupportedAspectRatios] = current.SupportedAspectRatios
		}
		if err := current.Validate(); err != nil {
			return err
		}

		db := s.tx.DB(ctx)
		for key, v := range values {
			raw, err := json.Marshal(v)
			if err != nil {
				return apperr.Validation("invalid setting value", map[string]string{key: err.Error()})
			}
			row := models.GlobalSetting{Key: key, Value: datatypes.JSON(raw), UpdatedBy: &by, UpdatedAt: database.NowUTC()}
			err = db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return database.TranslateError(err, "setting")
			}
		}

		if len(values) > 0 {
			err := s.audit.Record(ctx, audit.Event{
				UserID:     &by,
				Action:     audit.ActionSettingsUpdate,
				EntityType: "settings",
				Metadata:   values,
			})
			if err != nil {
				return err
			}
		}

		out = current
		return nil
	})
	if err != nil {
		return Settings{}, err
	}

	s.log.Info("settings updated", "user_id", by)
	return out, nil
}
