package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. RENTAL_SERVER_PORT.
const EnvPrefix = "RENTAL"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Database  DatabaseConfig  `json:"database" mapstructure:"database"`
	Session   SessionConfig   `json:"session" mapstructure:"session"`
	Admin     AdminConfig     `json:"admin" mapstructure:"admin"`
	Uploads   UploadsConfig   `json:"uploads" mapstructure:"uploads"`
	Templates TemplatesConfig `json:"templates" mapstructure:"templates"`
	Mail      MailConfig      `json:"mail" mapstructure:"mail"`
	Audit     AuditConfig     `json:"audit" mapstructure:"audit"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port        string `json:"port" mapstructure:"port"`
	StaticDir   string `json:"static_dir" mapstructure:"static_dir"`
	UseEmbedded bool   `json:"use_embedded" mapstructure:"use_embedded"`
	LogLevel    string `json:"log_level" mapstructure:"log_level"`
	LogFormat   string `json:"log_format" mapstructure:"log_format"`
	LogFile     string `json:"log_file" mapstructure:"log_file"`
	// TrustProxy enables X-Forwarded-For / X-Real-IP for audit logging.
	TrustProxy  bool `json:"trust_proxy" mapstructure:"trust_proxy"`
	MaxUploadMB int  `json:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path   string `json:"path" mapstructure:"path"`
	Driver string `json:"driver" mapstructure:"driver"`
}

// SessionConfig contains session-related configuration
type SessionConfig struct {
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	Name      string `json:"name" mapstructure:"name"`
	Path      string `json:"path" mapstructure:"path"`
	Domain    string `json:"domain" mapstructure:"domain"`
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`
	// IdleTimeout in seconds; 0 disables the idle check.
	IdleTimeout int    `json:"idle_timeout" mapstructure:"idle_timeout"`
	Secure      bool   `json:"secure" mapstructure:"secure"`
	HTTPOnly    bool   `json:"http_only" mapstructure:"http_only"`
	SameSite    string `json:"same_site" mapstructure:"same_site"`
	Rolling     bool   `json:"rolling" mapstructure:"rolling"`
	// CleanupInterval in minutes between purges of expired sessions.
	CleanupInterval int `json:"cleanup_interval_minutes" mapstructure:"cleanup_interval_minutes"`
}

// AdminConfig contains default admin user configuration
type AdminConfig struct {
	Username   string `json:"username" mapstructure:"username"`
	Password   string `json:"password" mapstructure:"password"`
	BcryptCost int    `json:"bcrypt_cost" mapstructure:"bcrypt_cost"`
}

// UploadsConfig contains document storage configuration
type UploadsConfig struct {
	Dir             string `json:"dir" mapstructure:"dir"`
	MaxFiles        int    `json:"max_files" mapstructure:"max_files"`
	CleanupOnDelete bool   `json:"cleanup_on_delete" mapstructure:"cleanup_on_delete"`
}

// TemplatesConfig points at the email template file
type TemplatesConfig struct {
	File string `json:"file" mapstructure:"file"`
}

// MailConfig selects and configures the notification transport
type MailConfig struct {
	Transport          string `json:"transport" mapstructure:"transport"` // log, smtp, ses, command
	From               string `json:"from" mapstructure:"from"`
	SMTPHost           string `json:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort           int    `json:"smtp_port" mapstructure:"smtp_port"`
	SMTPUsername       string `json:"smtp_username" mapstructure:"smtp_username"`
	SMTPPassword       string `json:"smtp_password" mapstructure:"smtp_password"`
	SMTPSSL            bool   `json:"smtp_ssl" mapstructure:"smtp_ssl"`
	SESRegion          string `json:"ses_region" mapstructure:"ses_region"`
	Command            string `json:"command" mapstructure:"command"`
	QueueSize          int    `json:"queue_size" mapstructure:"queue_size"`
	Workers            int    `json:"workers" mapstructure:"workers"`
	SendTimeoutSeconds int    `json:"send_timeout_seconds" mapstructure:"send_timeout_seconds"`
}

// AuditConfig contains audit listing configuration
type AuditConfig struct {
	PageSize int `json:"page_size" mapstructure:"page_size"`
}

var (
	mu        sync.RWMutex
	AppConfig *Config
)

// LoadConfig loads configuration from a file (json, yaml or toml by extension),
// a .env file in the working directory, and RENTAL_* environment variables.
func LoadConfig(configPath string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	registerDefaults(v, getDefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	validateAndSetDefaults(cfg)
	if err := validate(cfg); err != nil {
		return err
	}

	mu.Lock()
	AppConfig = cfg
	mu.Unlock()
	return nil
}

func registerDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]interface{}{
		"server.port":                      d.Server.Port,
		"server.static_dir":                d.Server.StaticDir,
		"server.use_embedded":              d.Server.UseEmbedded,
		"server.log_level":                 d.Server.LogLevel,
		"server.log_format":                d.Server.LogFormat,
		"server.log_file":                  d.Server.LogFile,
		"server.trust_proxy":               d.Server.TrustProxy,
		"server.max_upload_mb":             d.Server.MaxUploadMB,
		"database.path":                    d.Database.Path,
		"database.driver":                  d.Database.Driver,
		"session.secret_key":               d.Session.SecretKey,
		"session.name":                     d.Session.Name,
		"session.path":                     d.Session.Path,
		"session.domain":                   d.Session.Domain,
		"session.max_age":                  d.Session.MaxAge,
		"session.idle_timeout":             d.Session.IdleTimeout,
		"session.secure":                   d.Session.Secure,
		"session.http_only":                d.Session.HTTPOnly,
		"session.same_site":                d.Session.SameSite,
		"session.rolling":                  d.Session.Rolling,
		"session.cleanup_interval_minutes": d.Session.CleanupInterval,
		"admin.username":                   d.Admin.Username,
		"admin.password":                   d.Admin.Password,
		"admin.bcrypt_cost":                d.Admin.BcryptCost,
		"uploads.dir":                      d.Uploads.Dir,
		"uploads.max_files":                d.Uploads.MaxFiles,
		"uploads.cleanup_on_delete":        d.Uploads.CleanupOnDelete,
		"templates.file":                   d.Templates.File,
		"mail.transport":                   d.Mail.Transport,
		"mail.from":                        d.Mail.From,
		"mail.smtp_host":                   d.Mail.SMTPHost,
		"mail.smtp_port":                   d.Mail.SMTPPort,
		"mail.smtp_username":               d.Mail.SMTPUsername,
		"mail.smtp_password":               d.Mail.SMTPPassword,
		"mail.smtp_ssl":                    d.Mail.SMTPSSL,
		"mail.ses_region":                  d.Mail.SESRegion,
		"mail.command":                     d.Mail.Command,
		"mail.queue_size":                  d.Mail.QueueSize,
		"mail.workers":                     d.Mail.Workers,
		"mail.send_timeout_seconds":        d.Mail.SendTimeoutSeconds,
		"audit.page_size":                  d.Audit.PageSize,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        ":3000",
			StaticDir:   "static",
			UseEmbedded: true,
			LogLevel:    "info",
			LogFormat:   "console",
			MaxUploadMB: 50,
		},
		Database: DatabaseConfig{
			Path:   "./applications.db",
			Driver: "sqlite3",
		},
		Session: SessionConfig{
			SecretKey:       "change-this-session-secret",
			Name:            "rental-admin",
			Path:            "/",
			MaxAge:          86400, // 24 hours in seconds
			IdleTimeout:     3600,
			Secure:          false,
			HTTPOnly:        true,
			SameSite:        "lax",
			Rolling:         true,
			CleanupInterval: 15,
		},
		Admin: AdminConfig{
			Username:   "admin",
			Password:   "adminpass",
			BcryptCost: 10,
		},
		Uploads: UploadsConfig{
			Dir:             "uploads",
			MaxFiles:        10,
			CleanupOnDelete: true,
		},
		Templates: TemplatesConfig{
			File: "emailTemplates.json",
		},
		Mail: MailConfig{
			Transport:          "log",
			From:               "noreply@localhost",
			SMTPHost:           "localhost",
			SMTPPort:           25,
			SESRegion:          "us-east-1",
			Command:            "mail",
			QueueSize:          100,
			Workers:            2,
			SendTimeoutSeconds: 30,
		},
		Audit: AuditConfig{
			PageSize: 20,
		},
	}
}

// validateAndSetDefaults fills zero values that an explicit file may have left behind
func validateAndSetDefaults(config *Config) {
	defaults := getDefaultConfig()

	if config.Server.Port == "" {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.StaticDir == "" {
		config.Server.StaticDir = defaults.Server.StaticDir
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Server.LogFormat == "" {
		config.Server.LogFormat = defaults.Server.LogFormat
	}
	if config.Server.MaxUploadMB <= 0 {
		config.Server.MaxUploadMB = defaults.Server.MaxUploadMB
	}

	if config.Database.Path == "" {
		config.Database.Path = defaults.Database.Path
	}
	if config.Database.Driver == "" {
		config.Database.Driver = defaults.Database.Driver
	}

	if config.Session.SecretKey == "" {
		config.Session.SecretKey = defaults.Session.SecretKey
	}
	if config.Session.Name == "" {
		config.Session.Name = defaults.Session.Name
	}
	if config.Session.Path == "" {
		config.Session.Path = defaults.Session.Path
	}
	if config.Session.MaxAge == 0 {
		config.Session.MaxAge = defaults.Session.MaxAge
	}
	if config.Session.SameSite == "" {
		config.Session.SameSite = defaults.Session.SameSite
	}
	if config.Session.CleanupInterval <= 0 {
		config.Session.CleanupInterval = defaults.Session.CleanupInterval
	}

	if config.Admin.Username == "" {
		config.Admin.Username = defaults.Admin.Username
	}
	if config.Admin.Password == "" {
		config.Admin.Password = defaults.Admin.Password
	}
	if config.Admin.BcryptCost == 0 {
		config.Admin.BcryptCost = defaults.Admin.BcryptCost
	}

	if config.Uploads.Dir == "" {
		config.Uploads.Dir = defaults.Uploads.Dir
	}
	if config.Uploads.MaxFiles <= 0 {
		config.Uploads.MaxFiles = defaults.Uploads.MaxFiles
	}

	if config.Templates.File == "" {
		config.Templates.File = defaults.Templates.File
	}

	if config.Mail.Transport == "" {
		config.Mail.Transport = defaults.Mail.Transport
	}
	if config.Mail.From == "" {
		config.Mail.From = defaults.Mail.From
	}
	if config.Mail.QueueSize <= 0 {
		config.Mail.QueueSize = defaults.Mail.QueueSize
	}
	if config.Mail.Workers <= 0 {
		config.Mail.Workers = defaults.Mail.Workers
	}
	if config.Mail.SendTimeoutSeconds <= 0 {
		config.Mail.SendTimeoutSeconds = defaults.Mail.SendTimeoutSeconds
	}

	if config.Audit.PageSize <= 0 {
		config.Audit.PageSize = defaults.Audit.PageSize
	}
}

func validate(config *Config) error {
	switch config.Mail.Transport {
	case "log", "smtp", "ses", "command":
	default:
		return fmt.Errorf("invalid mail transport %q", config.Mail.Transport)
	}
	switch strings.ToLower(config.Session.SameSite) {
	case "lax", "strict", "none", "default":
	default:
		return fmt.Errorf("invalid session same_site %q", config.Session.SameSite)
	}
	if config.Database.Driver != "sqlite3" {
		return fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}
	if config.Admin.BcryptCost < 4 || config.Admin.BcryptCost > 31 {
		return fmt.Errorf("bcrypt_cost %d out of range", config.Admin.BcryptCost)
	}
	return nil
}

// SaveConfig saves the current configuration to a JSON file
func SaveConfig(configPath string) error {
	data, err := json.MarshalIndent(GetConfig(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfig returns the current configuration
func GetConfig() *Config {
	mu.Lock()
	defer mu.Unlock()
	if AppConfig == nil {
		AppConfig = getDefaultConfig()
	}
	return AppConfig
}

// Default returns a fresh copy of the built-in configuration.
func Default() *Config {
	return getDefaultConfig()
}
