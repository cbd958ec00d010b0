// Package config holds the static authorization policy: the permission
// matrix, network denylist, holiday calendar, and every numeric threshold the
// evaluators use. It is constructed once at process start and passed into the
// engine; nothing mutates it afterwards.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/viper"
)

// Wildcard matches any resource or action in the permission matrix.
const Wildcard = "*"

type Config struct {
	// AdminRole holds unconditional wildcard access.
	AdminRole string `mapstructure:"admin_role"`

	// PrivilegedRoles are exempt from time-of-day restrictions and get
	// role-driven session policy (longer cap, strict monitoring).
	PrivilegedRoles []string `mapstructure:"privileged_roles"`

	// Permissions maps role -> resource -> allowed actions. Wildcard entries
	// are permitted at the resource and action level.
	Permissions map[string]map[string][]string `mapstructure:"permissions"`

	// HighRiskActions is the shared sensitive-action set used by the risk
	// scorer and the session policy deriver.
	HighRiskActions []string `mapstructure:"high_risk_actions"`

	// DeniedNetworks lists origin addresses that are always restricted.
	DeniedNetworks []string `mapstructure:"denied_networks"`

	// Holidays are calendar dates (YYYY-MM-DD) on which client-role money
	// movement is blocked.
	Holidays []string `mapstructure:"holidays"`

	// Business hours bound the allowed local time of day, [start, end).
	BusinessHoursStart int `mapstructure:"business_hours_start"`
	BusinessHoursEnd   int `mapstructure:"business_hours_end"`

	Risk    RiskConfig    `mapstructure:"risk"`
	Session SessionConfig `mapstructure:"session"`
	Rules   RulesConfig   `mapstructure:"rules"`

	// DependencyTimeout caps each audit-store and subject-store call so a
	// slow dependency degrades to the fail-closed path instead of hanging
	// the request.
	DependencyTimeout time.Duration `mapstructure:"dependency_timeout"`
}

// RiskConfig holds the additive point model and recommendation thresholds.
type RiskConfig struct {
	FrequencyWindow    time.Duration `mapstructure:"frequency_window"`
	FrequencyThreshold int           `mapstructure:"frequency_threshold"`
	FrequencyPoints    int           `mapstructure:"frequency_points"`

	HighRiskActionPoints int `mapstructure:"high_risk_action_points"`

	LargeAmountThreshold float64 `mapstructure:"large_amount_threshold"`
	LargeAmountPoints    int     `mapstructure:"large_amount_points"`

	OffHoursPoints      int `mapstructure:"off_hours_points"`
	DeniedNetworkPoints int `mapstructure:"denied_network_points"`
	IncompleteKYCPoints int `mapstructure:"incomplete_kyc_points"`

	// Thresholds are checked in descending order; first match wins.
	DenyThreshold      int `mapstructure:"deny_threshold"`
	ChallengeThreshold int `mapstructure:"challenge_threshold"`
	MonitorThreshold   int `mapstructure:"monitor_threshold"`
}

// SessionConfig holds session-constraint derivation thresholds.
type SessionConfig struct {
	SensitiveSessionCap   time.Duration `mapstructure:"sensitive_session_cap"`
	PrivilegedSessionCap  time.Duration `mapstructure:"privileged_session_cap"`
	ReauthAmountThreshold float64       `mapstructure:"reauth_amount_threshold"`
}

// RulesConfig holds the dynamic rule engine's windows and limits.
type RulesConfig struct {
	FailedLoginWindow    time.Duration `mapstructure:"failed_login_window"`
	FailedLoginThreshold int           `mapstructure:"failed_login_threshold"`

	UnverifiedTransferLimit float64 `mapstructure:"unverified_transfer_limit"`

	HolidayRestrictedActions []string `mapstructure:"holiday_restricted_actions"`
	HolidayRestrictedRole    string   `mapstructure:"holiday_restricted_role"`
}

// Default returns the compiled-in policy.
func Default() *Config {
	return &Config{
		AdminRole:       "admin",
		PrivilegedRoles: []string{"admin", "compliance"},
		Permissions: map[string]map[string][]string{
			"client": {
				"banking/accounts":     {"read", "transfer", "withdraw"},
				"banking/cards":        {"read"},
				"banking/transactions": {"read"},
			},
			"teller": {
				"banking/accounts":  {"read", "transfer", "withdraw", "deposit"},
				"banking/customers": {"read"},
			},
			"compliance": {
				Wildcard:          {"read"},
				"banking/reports": {"read", "export"},
			},
			"admin": {
				Wildcard: {Wildcard},
			},
		},
		HighRiskActions:    []string{"transfer", "withdraw", "delete", "admin"},
		DeniedNetworks:     nil,
		Holidays:           nil,
		BusinessHoursStart: 6,
		BusinessHoursEnd:   22,
		Risk: RiskConfig{
			FrequencyWindow:      time.Hour,
			FrequencyThreshold:   50,
			FrequencyPoints:      30,
			HighRiskActionPoints: 20,
			LargeAmountThreshold: 100_000,
			LargeAmountPoints:    25,
			OffHoursPoints:       15,
			DeniedNetworkPoints:  40,
			IncompleteKYCPoints:  20,
			DenyThreshold:        70,
			ChallengeThreshold:   50,
			MonitorThreshold:     30,
		},
		Session: SessionConfig{
			SensitiveSessionCap:   30 * time.Minute,
			PrivilegedSessionCap:  time.Hour,
			ReauthAmountThreshold: 50_000,
		},
		Rules: RulesConfig{
			FailedLoginWindow:        30 * time.Minute,
			FailedLoginThreshold:     5,
			UnverifiedTransferLimit:  10_000,
			HolidayRestrictedActions: []string{"transfer", "withdraw"},
			HolidayRestrictedRole:    "client",
		},
		DependencyTimeout: 2 * time.Second,
	}
}

// Load reads a policy file over the defaults. Unset keys keep their default
// values, so a policy file only needs the deviations.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects policies that would make the engine vacuous.
func (c *Config) Validate() error {
	if c.AdminRole == "" {
		return fmt.Errorf("admin_role is required")
	}
	if len(c.Permissions) == 0 {
		return fmt.Errorf("permissions matrix is empty")
	}
	if c.BusinessHoursStart < 0 || c.BusinessHoursEnd > 24 || c.BusinessHoursStart >= c.BusinessHoursEnd {
		return fmt.Errorf("invalid business hours [%d, %d)", c.BusinessHoursStart, c.BusinessHoursEnd)
	}
	if c.Risk.DenyThreshold < c.Risk.ChallengeThreshold || c.Risk.ChallengeThreshold < c.Risk.MonitorThreshold {
		return fmt.Errorf("risk thresholds must be ordered deny >= challenge >= monitor")
	}
	for _, date := range c.Holidays {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return fmt.Errorf("invalid holiday date %q: %w", date, err)
		}
	}
	return nil
}

// IsAdminRole reports whether role is the wildcard administrative role.
func (c *Config) IsAdminRole(role string) bool {
	return role == c.AdminRole
}

// IsPrivilegedRole reports whether role is administrative or compliance-type.
func (c *Config) IsPrivilegedRole(role string) bool {
	return slices.Contains(c.PrivilegedRoles, role)
}

// IsHighRiskAction reports whether action is in the sensitive-action set.
func (c *Config) IsHighRiskAction(action string) bool {
	return slices.Contains(c.HighRiskActions, action)
}

// IsDeniedNetwork reports whether the origin address is denylisted.
func (c *Config) IsDeniedNetwork(origin string) bool {
	return origin != "" && slices.Contains(c.DeniedNetworks, origin)
}

// IsHoliday reports whether t falls on a configured holiday.
func (c *Config) IsHoliday(t time.Time) bool {
	return slices.Contains(c.Holidays, t.Format(time.DateOnly))
}

// WithinBusinessHours reports whether the local hour is inside the allowed
// window [start, end).
func (c *Config) WithinBusinessHours(hour int) bool {
	return hour >= c.BusinessHoursStart && hour < c.BusinessHoursEnd
}
