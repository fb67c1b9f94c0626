package main

import (
	https_server "NotaLink/api/http"
	"NotaLink/internal/config"
	"NotaLink/pkg/redis"
	"NotaLink/pkg/zlog"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()
	host := conf.MainConfig.Host
	port := conf.MainConfig.Port

	// 2. 启动后台组件：通道适配器、任务轮询、审计中继、会话清扫
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := https_server.Gateway.StartAll(ctx); err != nil {
		zlog.Fatal("通道适配器启动失败: " + err.Error())
	}
	https_server.Scheduler.Start()
	if https_server.Relay != nil {
		go func() {
			if err := https_server.Relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zlog.Error("审计中继退出: " + err.Error())
			}
		}()
	}
	go runSessionSweeper(ctx, conf.SessionConfig.SweepIntervalMin)

	// 3. 启动 HTTP 服务
	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		zlog.Info(fmt.Sprintf("服务器正在启动，监听地址: %s", addr))
		var err error
		if conf.MainConfig.Https {
			err = https_server.GE.RunTLS(addr, conf.MainConfig.CertFile, conf.MainConfig.KeyFile)
		} else {
			err = https_server.GE.Run(addr)
		}
		if err != nil {
			zlog.Fatal("服务器启动失败: " + err.Error())
		}
	}()

	// 4. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	zlog.Info("正在关闭服务器...")
	cancel()
	https_server.Scheduler.Stop()
	https_server.Gateway.StopAll()
	if https_server.AuditPub != nil {
		_ = https_server.AuditPub.Close()
	}
	_ = redis.Close()

	zlog.Info("服务器已关闭")
}

// runSessionSweeper 周期清扫：空闲超时的会话结束，过期的已结束会话清除
func runSessionSweeper(ctx context.Context, intervalMin int) {
	if intervalMin <= 0 {
		intervalMin = 10
	}
	ticker := time.NewTicker(time.Duration(intervalMin) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, sweepCancel := context.WithTimeout(context.Background(), time.Minute)
			if _, _, err := https_server.Sessions.SweepIdle(sweepCtx); err != nil {
				zlog.Error("会话清扫失败: " + err.Error())
			}
			sweepCancel()
		}
	}
}
