// Package config содержит локальные настройки агента.
//
// Настройки читаются один раз при старте из переменных окружения
// со значениями по умолчанию для локальной разработки.
package config

import (
	"os"
	"path/filepath"
)

// Settings — локальные настройки агента (read-only после Load).
type Settings struct {
	// AgentID — идентификатор агента, выданный при регистрации.
	AgentID string

	// AgentName — имя агента.
	AgentName string

	// MachineName — имя машины, на которой работает агент.
	MachineName string

	// ServerURL — настроенный базовый адрес сервера.
	// Используется для нормализации URL и как fallback для
	// сервера определений задач.
	ServerURL string

	// HomeDir — домашняя директория агента.
	HomeDir string

	// WorkFolder — рабочая директория для jobs.
	WorkFolder string

	// TasksDir — директория кэша определений задач.
	TasksDir string
}

// Load читает настройки агента из окружения.
func Load() *Settings {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	homeDir := envOr("FABRICA_HOME", defaultHome())

	return &Settings{
		AgentID:     envOr("FABRICA_AGENT_ID", hostname),
		AgentName:   envOr("FABRICA_AGENT_NAME", hostname),
		MachineName: hostname,
		ServerURL:   envOr("FABRICA_SERVER_URL", "http://localhost:8080/"),
		HomeDir:     homeDir,
		WorkFolder:  envOr("FABRICA_WORK_FOLDER", filepath.Join(homeDir, "_work")),
		TasksDir:    envOr("FABRICA_TASKS_DIR", filepath.Join(homeDir, "_tasks")),
	}
}

// envOr возвращает значение переменной окружения или default.
func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// defaultHome возвращает домашнюю директорию агента по умолчанию.
func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/lib/fabrica"
	}
	return filepath.Join(home, ".fabrica")
}
