package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Conf holds the application configuration. It is initialized once at
// process start; packages read it but never mutate it.
var Conf *Config

type Config struct {
	Debug            bool
	TestMode         bool
	Env              string // DEV (default), TEST, QA, PROD
	AppName          string
	Build            string
	SecretKey        string
	WorkDir          string
	FrontendBaseURL  string
	DefaultFromEmail mail.Address
	SendgridApiKey   string
	RollbarToken     string

	Database struct {
		URI  string
		Name string
	}

	Server struct {
		Host                 string
		Port                 string
		DebugHost            string
		ShutdownTimeout      time.Duration
		TokenExpirationDelta time.Duration
	}

	Uploads struct {
		Dir     string // disk fallback for when the blob store is unavailable
		BaseURL string // public prefix for fallback paths
	}
}

func (c *Config) Address() string { return c.Server.Host + ":" + c.Server.Port }

func init() {
	Conf = NewConfig()
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "EduPortal")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "w#2d$1h-z&9p(qx!m5y8c7v^r3t_k6u4n0b=j+l*e:s;a?f%g)")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("databaseURI", "mongodb://localhost:27017")
	v.SetDefault("databaseName", "eduportal")
	v.SetDefault("serverHost", "0.0.0.0")
	v.SetDefault("serverPort", "5000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("shutdownTimeout", 5*time.Second)
	v.SetDefault("tokenExpirationDelta", 5*time.Hour)
	v.SetDefault("uploadsDir", "uploads")
	v.SetDefault("uploadsBaseURL", "/uploads")

	env := os.Getenv("ENV")
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              env,
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          Getwd(),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
	}
	conf.Database.URI = v.GetString("databaseURI")
	conf.Database.Name = v.GetString("databaseName")
	conf.Server.Host = v.GetString("serverHost")
	conf.Server.Port = v.GetString("serverPort")
	conf.Server.DebugHost = v.GetString("serverDebugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("shutdownTimeout")
	conf.Server.TokenExpirationDelta = v.GetDuration("tokenExpirationDelta")
	conf.Uploads.Dir = filepath.Join(conf.WorkDir, v.GetString("uploadsDir"))
	conf.Uploads.BaseURL = v.GetString("uploadsBaseURL")
	return conf
}
