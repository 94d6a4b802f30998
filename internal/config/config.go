package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port       string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret    string
	JWTExpiresIn string // minutes

	AdminEmail    string
	AdminPassword string
	AdminFullName string

	// Device sync settings
	ReplayWindowSeconds int // max |server - device| clock skew on sync requests
	SyncDeadlineSeconds int // per-request processing deadline
	SyncCommandLimit    int // max commands delivered per sync response

	// Attendance settings
	DefaultGraceMinutes     int
	DefaultExitGraceMinutes int
	// OverrideSticky keeps a manual final_status pinned even when later
	// scans arrive for the same (student, period, date). When false the
	// reconciler reverts to last-write-wins.
	OverrideSticky bool
}

func Load() *Config {
	return &Config{
		Port:       getenv("PORT", "8080"),
		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: getenv("DB_PASSWORD", "postgres"),
		DBName:     getenv("DB_NAME", "campuspass_db"),
		DBSSLMode:  getenv("DB_SSLMODE", "disable"),

		JWTSecret:    getenv("JWT_SECRET", "supersecret_change_me"),
		JWTExpiresIn: getenv("JWT_EXPIRES_IN", "60"),

		AdminEmail:    getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword: getenv("ADMIN_PASSWORD", "admin123"),
		AdminFullName: getenv("ADMIN_FULL_NAME", "Administrator"),

		ReplayWindowSeconds: getenvInt("DEVICE_REPLAY_WINDOW_SECONDS", 300),
		SyncDeadlineSeconds: getenvInt("DEVICE_SYNC_DEADLINE_SECONDS", 10),
		SyncCommandLimit:    getenvInt("DEVICE_SYNC_COMMAND_LIMIT", 10),

		DefaultGraceMinutes:     getenvInt("ATTENDANCE_GRACE_MINUTES", 5),
		DefaultExitGraceMinutes: getenvInt("ATTENDANCE_EXIT_GRACE_MINUTES", 5),
		OverrideSticky:          getenvBool("ATTENDANCE_OVERRIDE_STICKY", true),
	}
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
