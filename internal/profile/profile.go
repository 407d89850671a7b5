// Package profile holds the runtime configuration for the DingTalk channel.
package profile

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the configuration to start the channel process. Every field can
// be set through a DINGBOT_* environment variable (or a .env file in dev).
type Profile struct {
	// Mode can be "prod" or "dev".
	Mode string `mapstructure:"mode"`
	// Addr is the binding address for the webhook server.
	Addr string `mapstructure:"addr"`
	// Port is the binding port for the webhook server.
	Port int `mapstructure:"port"`
	// Data is the directory holding the persisted JSON collections.
	Data string `mapstructure:"data"`

	// DingTalk app credentials.
	AppKey    string `mapstructure:"app_key"`
	AppSecret string `mapstructure:"app_secret"`
	RobotCode string `mapstructure:"robot_code"`
	// Account scopes the persisted collections; defaults to the robot code.
	Account string `mapstructure:"account"`

	// DefaultTimezone is used when a user never stated where they are.
	DefaultTimezone string `mapstructure:"default_timezone"`

	// Poll intervals, in seconds.
	ReminderIntervalSec     int `mapstructure:"reminder_interval_sec"`
	SubscriptionIntervalSec int `mapstructure:"subscription_interval_sec"`
	CalendarIntervalSec     int `mapstructure:"calendar_interval_sec"`
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// Load reads configuration from the environment. A .env file is honored when
// present; real environment variables win over it.
func Load() (*Profile, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("dingbot")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Defaults double as key registrations: viper only surfaces env-bound
	// values through Unmarshal for keys it knows about.
	v.SetDefault("app_key", "")
	v.SetDefault("app_secret", "")
	v.SetDefault("robot_code", "")
	v.SetDefault("account", "")
	v.SetDefault("mode", "dev")
	v.SetDefault("addr", "")
	v.SetDefault("port", 8233)
	v.SetDefault("data", "./data")
	v.SetDefault("default_timezone", "Asia/Shanghai")
	v.SetDefault("reminder_interval_sec", 30)
	v.SetDefault("subscription_interval_sec", 60)
	v.SetDefault("calendar_interval_sec", 120)

	p := &Profile{}
	if err := v.Unmarshal(p); err != nil {
		return nil, errors.Wrap(err, "unmarshal profile")
	}
	if p.Account == "" {
		p.Account = p.RobotCode
	}
	if p.Account == "" {
		p.Account = "default"
	}
	return p, p.Validate()
}

// Validate rejects nonsensical knob values early.
func (p *Profile) Validate() error {
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	if p.ReminderIntervalSec <= 0 || p.SubscriptionIntervalSec <= 0 || p.CalendarIntervalSec <= 0 {
		return errors.New("poll intervals must be positive")
	}
	return nil
}
