package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var Conf *Config

func init() {
	Conf = NewConfig()
}

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	EmailConfig struct {
		SendgridApiKey string
		SendTimeout    time.Duration
	}

	RedisConfig struct {
		Address       string // empty disables the broker
		Password      string
		DB            int
		ChannelPrefix string
	}

	ArtifactsConfig struct {
		Dir            string
		ScalerFile     string
		ClassifierFile string
		Watch          bool
	}

	NotifyConfig struct {
		PublishTimeout time.Duration
	}

	Config struct {
		AppName         string
		Env             string // DEV (local; default), TEST, QA, PROD
		Build           string
		Debug           bool
		TestMode        bool
		SecretKey       string
		FrontendBaseURL string
		RollbarToken    string
		defaultFrom     string

		Server    ServerConfig
		Database  DatabaseConfig
		Email     EmailConfig
		Redis     RedisConfig
		Artifacts ArtifactsConfig
		Notify    NotifyConfig
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

func (a ArtifactsConfig) ScalerPath() string {
	return filepath.Join(a.Dir, a.ScalerFile)
}

func (a ArtifactsConfig) ClassifierPath() string {
	return filepath.Join(a.Dir, a.ClassifierFile)
}

// DefaultFromEmail parses the configured sender, falling back to the bare address.
func (c *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(c.defaultFrom); err == nil {
		if addr.Name == "" {
			addr.Name = c.AppName
		}
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: c.defaultFrom}
}

// NewConfig loads the configuration from defaults, the optional dotenv file and the environment.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "MIT ERP")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "k2#8v!n0_q)zr4$t@m1x(e7w%p^b6c&y9+a5s=u3d*h-j")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "mit_erp")
	v.SetDefault("database.user", "mit_erp")
	v.SetDefault("database.password", "mit_erp")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("email.sendgridApiKey", "")
	v.SetDefault("email.sendTimeout", 10*time.Second)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channelPrefix", "notify:")

	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("artifacts.scalerFile", "scaler.json")
	v.SetDefault("artifacts.classifierFile", "classifier.json")
	v.SetDefault("artifacts.watch", false)

	v.SetDefault("notify.publishTimeout", 3*time.Second)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("debug", false)
		v.SetDefault("database.engine", "memory")
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		AppName:         v.GetString("appName"),
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		RollbarToken:    v.GetString("rollbarToken"),
		defaultFrom:     v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Email: EmailConfig{
			SendgridApiKey: v.GetString("email.sendgridApiKey"),
			SendTimeout:    v.GetDuration("email.sendTimeout"),
		},
		Redis: RedisConfig{
			Address:       v.GetString("redis.address"),
			Password:      v.GetString("redis.password"),
			DB:            v.GetInt("redis.db"),
			ChannelPrefix: v.GetString("redis.channelPrefix"),
		},
		Artifacts: ArtifactsConfig{
			Dir:            v.GetString("artifacts.dir"),
			ScalerFile:     v.GetString("artifacts.scalerFile"),
			ClassifierFile: v.GetString("artifacts.classifierFile"),
			Watch:          v.GetBool("artifacts.watch"),
		},
		Notify: NotifyConfig{
			PublishTimeout: v.GetDuration("notify.publishTimeout"),
		},
	}
}
