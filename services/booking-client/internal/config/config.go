// Package config is the booking client's environment configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	libconfig "github.com/md-rashed-zaman/canchas/libs/config"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/session"
)

const Prefix = "CANCHAS"

const (
	PolicyOpen   = "open"
	PolicyClosed = "closed"
)

type Config struct {
	APIURL             string        `envconfig:"API_URL" required:"true" validate:"url"`
	Locale             string        `envconfig:"LOCALE" default:"es"`
	Timezone           string        `envconfig:"TIMEZONE" default:"Local"`
	ReservationPrice   float64       `envconfig:"RESERVATION_PRICE" default:"10000" validate:"gt=0"`
	CancellationHours  int           `envconfig:"CANCELLATION_HOURS" default:"6" validate:"gte=0"`
	FetchFailurePolicy string        `envconfig:"FETCH_FAILURE_POLICY" default:"open" validate:"oneof=open closed"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s" validate:"gt=0"`
	ServiceName        string        `envconfig:"SERVICE_NAME" default:"booking-client"`

	SessionFile          string `envconfig:"SESSION_FILE"`
	SessionRedisAddr     string `envconfig:"SESSION_REDIS_ADDR" validate:"omitempty,hostname_port"`
	SessionRedisDB       int    `envconfig:"SESSION_REDIS_DB" default:"0" validate:"gte=0"`
	SessionRedisPassword string `envconfig:"SESSION_REDIS_PASSWORD"`

	location *time.Location
}

// Load reads .env files (when present) and then the CANCHAS_* environment.
func Load(dotenv ...string) (Config, error) {
	if err := libconfig.LoadDotenv(dotenv...); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, err
	}
	cfg.FetchFailurePolicy = strings.ToLower(strings.TrimSpace(cfg.FetchFailurePolicy))
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s_TIMEZONE: %w", Prefix, err)
	}
	cfg.location = loc
	if cfg.SessionFile == "" {
		path, err := session.DefaultPath()
		if err != nil {
			return Config{}, fmt.Errorf("config: session file: %w", err)
		}
		cfg.SessionFile = path
	}
	return cfg, nil
}

// Location is the device time zone slots are computed in.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func (c Config) FailClosed() bool { return c.FetchFailurePolicy == PolicyClosed }
