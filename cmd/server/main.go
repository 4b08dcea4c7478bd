package main

import (
	"github.com/blues/fps/internal/config"
	"github.com/blues/fps/internal/database"
	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/logger"
	"github.com/blues/fps/internal/router"
	"github.com/blues/fps/internal/task"
	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化托管合约客户端
	chain, err := escrow.Init(cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize escrow client: %v", err)
	}

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(db, chain, cfg)

	// 启动定时任务
	manager := task.Start(db, chain, cfg)
	defer manager.Stop()

	// 启动服务器
	logger.Info("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}
