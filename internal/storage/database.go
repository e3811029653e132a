package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mentorgo/internal/config"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// Open connects to the database configured under cfg.Databases[dbType].
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", sqliteDSN(dbCfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// A single connection keeps ":memory:" databases alive and serializes writers.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		params := dbCfg.Params
		if params == "" {
			params = "charset=utf8mb4"
		}
		if !strings.Contains(params, "parseTime") {
			params += "&parseTime=true"
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				auth_method TEXT NOT NULL DEFAULT 'email',
				is_verified INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				last_login DATETIME
			)`,
			`CREATE TABLE IF NOT EXISTS user_profiles (
				user_id TEXT PRIMARY KEY,
				screen_name TEXT NOT NULL DEFAULT '',
				pronouns TEXT NOT NULL DEFAULT '',
				identity_goals TEXT NOT NULL DEFAULT '',
				focus_area TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS user_preferences (
				user_id TEXT PRIMARY KEY,
				response_length TEXT NOT NULL DEFAULT 'medium',
				communication_style TEXT NOT NULL DEFAULT 'empathetic',
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS chat_sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				chat_mode TEXT NOT NULL DEFAULT 'mentor',
				status TEXT NOT NULL DEFAULT 'active',
				title TEXT NOT NULL DEFAULT '',
				started_at DATETIME NOT NULL,
				ended_at DATETIME,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, started_at DESC)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_sessions_one_active ON chat_sessions(user_id) WHERE status = 'active'`,
			`CREATE TABLE IF NOT EXISTS chat_messages (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				sender TEXT NOT NULL,
				message_text TEXT NOT NULL,
				sentiment_score REAL NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY(session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS chat_summaries (
				session_id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				title TEXT NOT NULL,
				summary TEXT NOT NULL,
				mood TEXT NOT NULL,
				tags TEXT NOT NULL DEFAULT '[]',
				summary_date TEXT NOT NULL,
				key_insights TEXT NOT NULL DEFAULT '',
				action_items TEXT NOT NULL DEFAULT '[]',
				quality_score INTEGER NOT NULL DEFAULT 0,
				emotional_journey TEXT NOT NULL DEFAULT '',
				source TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY(session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_summaries_user ON chat_summaries(user_id, created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS feedback (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				session_id TEXT,
				rating INTEGER NOT NULL,
				comments TEXT NOT NULL DEFAULT '',
				suggestions TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY(session_id) REFERENCES chat_sessions(id) ON DELETE SET NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id CHAR(36) NOT NULL,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				auth_method VARCHAR(20) NOT NULL DEFAULT 'email',
				is_verified BOOLEAN NOT NULL DEFAULT FALSE,
				created_at DATETIME(6) NOT NULL,
				last_login DATETIME(6) NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_profiles (
				user_id CHAR(36) NOT NULL,
				screen_name VARCHAR(255) NOT NULL DEFAULT '',
				pronouns VARCHAR(100) NOT NULL DEFAULT '',
				identity_goals TEXT NOT NULL,
				focus_area TEXT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				PRIMARY KEY (user_id),
				CONSTRAINT fk_profiles_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_preferences (
				user_id CHAR(36) NOT NULL,
				response_length VARCHAR(20) NOT NULL DEFAULT 'medium',
				communication_style VARCHAR(100) NOT NULL DEFAULT 'empathetic',
				updated_at DATETIME(6) NOT NULL,
				PRIMARY KEY (user_id),
				CONSTRAINT fk_preferences_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chat_sessions (
				id CHAR(36) NOT NULL,
				user_id CHAR(36) NOT NULL,
				chat_mode VARCHAR(20) NOT NULL DEFAULT 'mentor',
				status VARCHAR(20) NOT NULL DEFAULT 'active',
				title VARCHAR(255) NOT NULL DEFAULT '',
				started_at DATETIME(6) NOT NULL,
				ended_at DATETIME(6) NULL,
				active_user_id CHAR(36) AS (IF(status = 'active', user_id, NULL)) VIRTUAL,
				PRIMARY KEY (id),
				INDEX idx_chat_sessions_user (user_id, started_at),
				UNIQUE KEY uq_chat_sessions_one_active (active_user_id),
				CONSTRAINT fk_chat_sessions_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chat_messages (
				id CHAR(36) NOT NULL,
				session_id CHAR(36) NOT NULL,
				user_id CHAR(36) NOT NULL,
				sender VARCHAR(10) NOT NULL,
				message_text MEDIUMTEXT NOT NULL,
				sentiment_score DOUBLE NOT NULL DEFAULT 0,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_chat_messages_session (session_id, created_at),
				INDEX idx_chat_messages_user (user_id, created_at),
				CONSTRAINT fk_chat_messages_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
				CONSTRAINT fk_chat_messages_session FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chat_summaries (
				session_id CHAR(36) NOT NULL,
				user_id CHAR(36) NOT NULL,
				title VARCHAR(255) NOT NULL,
				summary TEXT NOT NULL,
				mood VARCHAR(20) NOT NULL,
				tags TEXT NOT NULL,
				summary_date VARCHAR(10) NOT NULL,
				key_insights TEXT NOT NULL,
				action_items TEXT NOT NULL,
				quality_score INT NOT NULL DEFAULT 0,
				emotional_journey TEXT NOT NULL,
				source VARCHAR(20) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (session_id),
				INDEX idx_chat_summaries_user (user_id, created_at),
				CONSTRAINT fk_chat_summaries_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
				CONSTRAINT fk_chat_summaries_session FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS feedback (
				id CHAR(36) NOT NULL,
				user_id CHAR(36) NOT NULL,
				session_id CHAR(36) NULL,
				rating INT NOT NULL,
				comments TEXT NOT NULL,
				suggestions TEXT NOT NULL,
				category VARCHAR(100) NOT NULL DEFAULT '',
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				CONSTRAINT fk_feedback_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
				CONSTRAINT fk_feedback_session FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE SET NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token VARCHAR(255) NOT NULL PRIMARY KEY,
				user_id CHAR(36) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				expires_at DATETIME(6) NOT NULL,
				INDEX idx_user_tokens_user (user_id),
				CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

// isUniqueViolation recognizes duplicate-key errors from either driver.
func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
