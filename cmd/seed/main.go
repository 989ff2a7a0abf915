package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/config"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/repository"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/seed"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var scopeParam string
	var department string

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机员工, 2: 插入参考数据, 3: 插入演示周期)")
	flag.IntVar(&n, "n", 20, "要插入的员工数量")
	flag.StringVar(&scopeParam, "scope", "", "演示周期的范围，如 2025-06 或 2025-W23")
	flag.StringVar(&department, "department", "", "演示周期所属科室，留空表示全院")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	// 创建 repository 和 seeder
	repo := repository.NewRepository(cfg, dbpool)
	seeder := seed.NewSeeder(cfg, repo)

	// 执行操作
	switch op {
	case 0:
		logger.Error("未指定操作")
	case 1:
		if n <= 0 {
			logger.Error("请输入合法的员工数量")
			return
		}
		cnt, err := seeder.Employees(n)
		if err != nil {
			logger.Error("无法插入员工", slog.String("error", err.Error()), slog.Int("inserted", cnt))
			return
		}
		logger.Info("插入员工成功", slog.Int("count", cnt))
	case 2:
		if err := seeder.ReferenceData(); err != nil {
			logger.Error("无法插入参考数据", slog.String("error", err.Error()))
			return
		}
		logger.Info("插入参考数据成功")
	case 3:
		scope, err := domain.ParseScope(scopeParam, department)
		if err != nil {
			logger.Error("无效的周期范围", slog.String("error", err.Error()))
			return
		}
		if err := seeder.DemoPeriod(scope); err != nil {
			logger.Error("无法插入演示周期", slog.String("error", err.Error()))
			return
		}
		logger.Info("插入演示周期成功", slog.String("scope", scope.Key()))
	default:
		logger.Error("不支持的操作", slog.Int("op", op))
	}
}
