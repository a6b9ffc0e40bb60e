package db

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/zulandar/docchat/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported transcript drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverNone   = "none"
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

// DSN builds a MySQL DSN with parseTime enabled.
func DSN(host string, port int, database, user, password string) string {
	c := gomysql.NewConfig()
	c.User = user
	c.Passwd = password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	c.DBName = database
	c.ParseTime = true
	return c.FormatDSN()
}

// Open connects to the transcript database described by cfg. It fails for
// the "none" driver; callers check Enabled first.
func Open(cfg config.TranscriptConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch cfg.Driver {
	case DriverSQLite:
		return openSQLite(cfg.Path, gcfg)
	case DriverMySQL:
		m := cfg.MySQL
		db, err := gorm.Open(mysql.Open(DSN(m.Host, m.Port, m.Database, m.User, m.Password)), gcfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", m.Host, m.Port, m.Database, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

// Enabled reports whether cfg asks for a transcript at all.
func Enabled(cfg config.TranscriptConfig) bool {
	return cfg.Driver != "" && cfg.Driver != DriverNone
}

func openSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("db: create directory for %s: %w", path, err)
			}
		}
	}
	db, err := gorm.Open(sqlite.Open(path), gcfg)
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	// A single connection keeps in-memory databases shared and serializes
	// writers on file databases.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
