package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wpplink.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wpplink")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the UDS socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// AppDBPath returns the message store path.
func AppDBPath(name string) string {
	return filepath.Join(Dir(name), "messages.db")
}

// BackupDir is where exported backup files land by default.
func BackupDir(name string) string {
	return filepath.Join(Dir(name), "backups")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "linkd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// DotenvPath returns the optional .env file next to the config.
func DotenvPath() string {
	return filepath.Join(BaseDir(), ".env")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name), BackupDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
