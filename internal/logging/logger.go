package logging

import (
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// NewLogger builds the process logger: JSON in production, colored console otherwise.
func NewLogger(env string) *zap.Logger {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{"stdout"}

	logger, err := config.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}

	return logger
}

// NewGormLogger routes gorm's SQL log through zap.
func NewGormLogger(l *zap.Logger, env string) gormlogger.Interface {
	level := gormlogger.Info
	if env == "production" {
		level = gormlogger.Warn
	}
	var writer gormlogger.Writer = log.New(os.Stdout, "\r\n", log.LstdFlags)
	if l != nil {
		writer = zap.NewStdLog(l.Named("gorm"))
	}

	return gormlogger.New(writer, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  env != "production",
	})
}
