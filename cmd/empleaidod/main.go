package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"Empleaido-Core/internal/config"
	"Empleaido-Core/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "empleaidod",
	Short:         "Empleaido 激活与技能执行服务",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	defaultPath := os.Getenv("EMPLEAIDO_CONFIG")
	if defaultPath == "" {
		defaultPath = filepath.Join("configs", "empleaido.json")
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "配置文件路径")
	rootCmd.AddCommand(serveCmd, skillsCmd, validateRegistryCmd)
}

// main 是 empleaidod 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.L().Error("empleaidod 运行失败", "error", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig 读取配置文件。文件不存在时退回默认配置，便于本地试用。
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(filepath.Dir(configPath)), nil
	}
	return config.Load(configPath)
}

func initLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Audit.File.Path != "",
			Path:       cfg.Audit.File.Path,
			MaxSizeMB:  cfg.Audit.File.MaxSizeMB,
			MaxBackups: cfg.Audit.File.MaxBackups,
			MaxAgeDays: cfg.Audit.File.MaxAgeDays,
			Compress:   true,
		},
	})
}
