package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"Lifeline/pkg/logger"
	"Lifeline/pkg/scheduler"
)

// Config 备份配置
type Config struct {
	Driver string // "sqlite" 或 "mysql"
	DSN    string
	Path   string // 备份文件目录
}

// Schedule 在给定调度器上挂载周期备份任务。
// expr 为空时不挂载。
func Schedule(cr *scheduler.Cron, expr string, cfg Config) error {
	if expr == "" {
		return nil
	}
	_, err := cr.Add(expr, scheduler.FuncJob(func(_ context.Context) {
		if err := Execute(cfg); err != nil {
			logger.Warnf("backup failed: %v", err)
			return
		}
		logger.Info("backup completed")
	}))
	return err
}

// Execute 按驱动执行一次数据库备份
func Execute(cfg Config) error {
	stamp := time.Now().Format("20060102_150405")
	switch cfg.Driver {
	case "sqlite":
		dst := filepath.Join(cfg.Path, fmt.Sprintf("lifeline_backup_%s.db", stamp))
		return backupSQLite(cfg.DSN, dst)
	case "mysql":
		dst := filepath.Join(cfg.Path, fmt.Sprintf("lifeline_backup_%s.sql", stamp))
		return backupMySQL(cfg.DSN, dst)
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", cfg.Driver)
	}
}

func backupSQLite(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create backup directory: %v", err)
	}

	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening source file: %v", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating destination file: %v", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("error copying data: %v", err)
	}
	return nil
}

func backupMySQL(dsn, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create backup directory: %v", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating destination file: %v", err)
	}
	defer out.Close()

	cmd := exec.Command("mysqldump", dsn)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to backup MySQL database: %v", err)
	}
	return nil
}
