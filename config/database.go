package config

import (
	"database/sql"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

// SetDB replaces the global handle. Used by tools and tests that open their own connection.
func SetDB(d *gorm.DB) {
	db = d
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// DatabaseSettings holds the connection and pool settings read from env.
type DatabaseSettings struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	SlowThreshold   time.Duration
}

// LoadDatabaseSettings reads DB_* env keys.
//
// Pool overrides (optional):
// - DB_MAX_OPEN_CONNS (default 50)
// - DB_MAX_IDLE_CONNS (default 25)
// - DB_CONN_MAX_LIFETIME_SECONDS (default 300)
// - DB_CONN_MAX_IDLE_TIME_SECONDS (default 60)
// - DB_SLOW_QUERY_MS (default 1000), the gorm slow statement threshold
func LoadDatabaseSettings() DatabaseSettings {
	return DatabaseSettings{
		User:            os.Getenv("DB_USER"),
		Password:        os.Getenv("DB_PASSWORD"),
		Host:            os.Getenv("DB_HOST"),
		Port:            os.Getenv("DB_PORT"),
		Name:            os.Getenv("DB_NAME"),
		MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
		MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		ConnMaxIdleTime: time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,
		SlowThreshold:   time.Duration(intFromEnv("DB_SLOW_QUERY_MS", 1000)) * time.Millisecond,
	}
}

// DSN formats the MySQL DSN. Times are parsed as UTC, which the FIFO
// received_at ordering relies on. A Host of "/cloudsql/<CONNECTION_NAME>"
// connects over the unix socket.
func (s DatabaseSettings) DSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = s.User
	cfg.Passwd = s.Password
	cfg.DBName = s.Name
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(s.Host, s.Port)
	if strings.HasPrefix(s.Host, "/cloudsql/") {
		cfg.Net = "unix"
		cfg.Addr = s.Host
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

func (s DatabaseSettings) applyPool(sqlDB *sql.DB) {
	if s.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(s.MaxOpenConns)
	}
	if s.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(s.MaxIdleConns)
	}
	if s.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(s.ConnMaxLifetime)
	}
	if s.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(s.ConnMaxIdleTime)
	}
}

// ConnectDatabaseWithRetry connects, installs the tracing and tenant guard
// plugins and sets the global DB. It blocks until the database is reachable.
func ConnectDatabaseWithRetry() {
	settings := LoadDatabaseSettings()
	dsn := settings.DSN()

	for attempt := 1; ; attempt++ {
		conn, err := gorm.Open(mysql.Open(dsn), initConfig(settings))
		if err == nil {
			if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
				settings.applyPool(sqlDB)
			}
			if pluginErr := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(settings.Name))); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			if pluginErr := conn.Use(NewTenantGuardPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install tenant guard plugin: %v", pluginErr)
			}
			db = conn
			log.Printf("connected to ledger database %q (attempt=%d)", settings.Name, attempt)
			return
		}

		sleep := retryDelay(attempt)
		log.Printf("failed to connect ledger database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// IntFromEnv is the exported form of intFromEnv for other packages.
func IntFromEnv(key string, def int) int {
	return intFromEnv(key, def)
}

func initConfig(settings DatabaseSettings) *gorm.Config {
	return &gorm.Config{
		Logger:         WriteGormLog(settings.SlowThreshold),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog(slow time.Duration) logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: slow,
		},
	)
	return newLogger
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}

// WriteGormLog logs every statement to GORM_LOG when set, otherwise errors
// and statements slower than slow to stdout.
func WriteGormLog(slow time.Duration) logger.Interface {
	logFile := os.Getenv("GORM_LOG")
	if logFile == "" {
		return initLog(slow)
	}
	f, err := os.Create(logFile)
	if err != nil {
		return initLog(slow)
	}
	newLogger := logger.New(log.New(io.MultiWriter(f), "\r\n", log.LstdFlags), logger.Config{
		Colorful:      true,
		LogLevel:      logger.Info,
		SlowThreshold: slow,
	})
	return newLogger
}
