package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectError bool
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name: "Valid configuration",
			envVars: map[string]string{
				"TELEGRAM_TOKEN":        "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11",
				"WEBHOOK_URL":           "https://example.com/webhook",
				"TELEGRAM_SECRET_TOKEN": "secret123",
				"ADMIN_IDS":             "1, 2,x,3",
				"PORT":                  "9000",
				"DB_FILE":               "test.db",
				"BOOKING_TIMEZONE":      "America/Bogota",
				"BOOKING_ALLOW_OVERLAP": "true",
				"TIME_FRAME_SLOT_MINS":  "60",
				"REMINDER_LEAD":         "30m",
				"ONLINE_STATUS_SPEC":    "",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "9000", cfg.Server.Port)
				assert.Equal(t, "test.db", cfg.Database.Path)
				assert.Equal(t, []int64{1, 2, 3}, cfg.Telegram.AdminIDs)
				assert.Equal(t, "America/Bogota", cfg.Booking.Location().String())
				assert.True(t, cfg.Booking.AllowOverlap)
				assert.Equal(t, 60, cfg.Booking.SlotLengthMins)
				assert.Equal(t, 30*time.Minute, cfg.Worker.ReminderLead)
				assert.Equal(t, "@every 2m", cfg.Worker.OnlineStatusSpec, "empty value falls back to default")
				assert.True(t, cfg.IsAdmin(2))
				assert.False(t, cfg.IsAdmin(4))
			},
		},
		{
			name: "Defaults",
			envVars: map[string]string{
				"TELEGRAM_TOKEN": "token",
				"WEBHOOK_URL":    "https://example.com/webhook",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "8080", cfg.Server.Port)
				assert.Equal(t, time.UTC, cfg.Booking.Location())
				assert.False(t, cfg.Booking.AllowOverlap)
				assert.Equal(t, 90, cfg.Booking.SlotLengthMins)
				assert.Equal(t, 7, cfg.Booking.DaysAhead)
				assert.Equal(t, 15*time.Minute, cfg.Worker.ReminderLead)
				assert.Equal(t, "info", cfg.Log.Level)
				assert.Empty(t, cfg.Payment.WebhookSecret)
			},
		},
		{
			name:        "Missing required fields",
			envVars:     map[string]string{"PORT": "8080"},
			expectError: true,
		},
		{
			name: "Unknown timezone",
			envVars: map[string]string{
				"TELEGRAM_TOKEN":   "token",
				"WEBHOOK_URL":      "https://example.com/webhook",
				"BOOKING_TIMEZONE": "Mars/Olympus",
			},
			expectError: true,
		},
		{
			name: "Slot length too short",
			envVars: map[string]string{
				"TELEGRAM_TOKEN":       "token",
				"WEBHOOK_URL":          "https://example.com/webhook",
				"TIME_FRAME_SLOT_MINS": "15",
			},
			expectError: true,
		},
	}

	keys := []string{
		"TELEGRAM_TOKEN", "WEBHOOK_URL", "TELEGRAM_SECRET_TOKEN", "ADMIN_IDS", "PORT", "DB_FILE",
		"BOOKING_TIMEZONE", "BOOKING_ALLOW_OVERLAP", "TIME_FRAME_SLOT_MINS", "BOOKING_DAYS_AHEAD",
		"REMINDER_LEAD", "ONLINE_STATUS_SPEC", "PAYMENT_WEBHOOK_SECRET", "LOG_LEVEL", "RATE_LIMIT",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range keys {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := FromEnv()
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}
