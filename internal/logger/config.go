// internal/logger/config.go
package logger

import "github.com/rovshanmuradov/solana-copybot/internal/config"

type Config struct {
	LogFile     string
	MaxSize     int  // мегабайты
	MaxAge      int  // дни
	MaxBackups  int  // количество файлов
	Compress    bool // сжимать ротированные файлы
	Development bool
	Pretty      bool // цветной вывод в консоль
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		LogFile:    "bot.log",
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
	}
}

// FromAppConfig maps the log section of the application config.
func FromAppConfig(cfg *config.Config) *Config {
	lc := DefaultConfig()
	if cfg == nil {
		return lc
	}
	if cfg.Log.File != "" {
		lc.LogFile = cfg.Log.File
	}
	if cfg.Log.MaxSize > 0 {
		lc.MaxSize = cfg.Log.MaxSize
	}
	if cfg.Log.MaxAge > 0 {
		lc.MaxAge = cfg.Log.MaxAge
	}
	if cfg.Log.MaxBackups > 0 {
		lc.MaxBackups = cfg.Log.MaxBackups
	}
	lc.Compress = cfg.Log.Compress
	lc.Pretty = cfg.Log.Pretty
	lc.Development = cfg.Debug
	return lc
}
