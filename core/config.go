package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Addr            string
		DebugHost       string
		ShutdownTimeout time.Duration
		JWTExpiration   time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | mongo | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MongoURI      string
	}

	StorageConfig struct {
		Root          string
		BaseURL       string
		MaxUploadSize int64
	}

	ReportsConfig struct {
		SchemasDir string
		// SchoolsFile lists every school expected to report, counted as todo until they do.
		SchoolsFile string
		// ExpectedSections is the number of sections a school must complete per report type.
		ExpectedSections        map[string]int
		DefaultExpectedSections int
		// Sessions untouched for SessionIdle are closed on every SessionPurgeSpec tick (cron spec).
		SessionIdle      time.Duration
		SessionPurgeSpec string
		Timezone         string
	}

	Config struct {
		Env      string
		Build    string
		Debug    bool
		TestMode bool
		AppName  string
		WorkDir  string

		SecretKey        string
		DefaultFromEmail string
		RollbarToken     string
		SendgridApiKey   string
		NatsURL          string
		FrontendBaseURL  string

		Server   ServerConfig
		Database DatabaseConfig
		Storage  StorageConfig
		Reports  ReportsConfig
	}
)

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

// ExpectedFor returns the number of sections a school must complete for reportType.
func (c ReportsConfig) ExpectedFor(reportType string) int {
	if n, ok := c.ExpectedSections[reportType]; ok {
		return n
	}
	return c.DefaultExpectedSections
}

// NewConfig loads the configuration from the environment,
// optionally seeded from `config/.env.<env>` in the working directory.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "SchoolStats")
	v.SetDefault("secretKey", "x9v!k2#q7pl$4m@z8d&c3w^r6t*b1n(e5y)hj0ufsga")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("natsURL", "")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpiration", 7*24*time.Hour)
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "schoolstats")
	v.SetDefault("database.user", "schoolstats")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.mongoURI", "mongodb://localhost:27017")
	v.SetDefault("storage.root", "uploads")
	v.SetDefault("storage.baseURL", "/files")
	v.SetDefault("storage.maxUploadSize", int64(7*1024*1024))
	v.SetDefault("reports.schemasDir", "")
	v.SetDefault("reports.schoolsFile", "")
	v.SetDefault("reports.expectedSections", map[string]int{"mn": 8})
	v.SetDefault("reports.defaultExpectedSections", 2)
	v.SetDefault("reports.sessionIdle", 2*time.Hour)
	v.SetDefault("reports.sessionPurgeSpec", "@every 10m")
	v.SetDefault("reports.timezone", "Local")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.Getwd: %v", err)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	expected := make(map[string]int)
	for k, n := range v.GetStringMap("reports.expectedSections") {
		expected[k] = toInt(n)
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		WorkDir:          wd,
		SecretKey:        v.GetString("secretKey"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		NatsURL:          v.GetString("natsURL"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			JWTExpiration:   v.GetDuration("server.jwtExpiration"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MongoURI:      v.GetString("database.mongoURI"),
		},
		Storage: StorageConfig{
			Root:          v.GetString("storage.root"),
			BaseURL:       v.GetString("storage.baseURL"),
			MaxUploadSize: v.GetInt64("storage.maxUploadSize"),
		},
		Reports: ReportsConfig{
			SchemasDir:              v.GetString("reports.schemasDir"),
			SchoolsFile:             v.GetString("reports.schoolsFile"),
			ExpectedSections:        expected,
			DefaultExpectedSections: v.GetInt("reports.defaultExpectedSections"),
			SessionIdle:             v.GetDuration("reports.sessionIdle"),
			SessionPurgeSpec:        v.GetString("reports.sessionPurgeSpec"),
			Timezone:                v.GetString("reports.timezone"),
		},
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
