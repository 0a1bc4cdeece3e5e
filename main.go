package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DaniXM02/safegrid/config"
	"github.com/DaniXM02/safegrid/internal/database"
	"github.com/DaniXM02/safegrid/internal/ingest"
	"github.com/DaniXM02/safegrid/internal/logger"
	"github.com/DaniXM02/safegrid/internal/mqtt"
	"github.com/DaniXM02/safegrid/internal/qos"
	"github.com/DaniXM02/safegrid/internal/sampler"
	"github.com/DaniXM02/safegrid/internal/shaper"
)

func main() {
	if err := logger.InitLogger(); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Close()
	logger.Info("启动 SafeGrid AP 监控...")

	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("加载配置失败: %v", err)
	}

	// 初始化数据库（唯一的致命失败点：打不开存储就没法干活）
	store, err := database.InitDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("初始化数据库失败: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("关闭数据库失败: %v", err)
		}
	}()

	// 初始化MQTT客户端（断线自动重连，连不上不阻塞启动）
	mqttClient := mqtt.NewClient(&cfg.MQTT)
	if err := mqttClient.Connect(); err != nil {
		logger.Error("MQTT连接失败: %v", err)
	}

	// 共享累加器 + 最近状态跟踪（显式传递，不走全局变量）
	acc := qos.NewVolumeAccumulator()
	tracker := ingest.NewTracker()

	// 消息接入：插座遥测/告警/状态 -> SQLite
	// 自身 client id 进保留集：本进程的遗嘱/在线状态不能算成插座状态
	ingestor := ingest.NewIngestor(store, acc, tracker, cfg.MQTT.ClientID)
	if err := ingestor.Subscribe(mqttClient); err != nil {
		logger.Error("订阅插座主题失败: %v", err)
	}

	// 采样循环：系统计数器 + tc流控 + 消息流量仲裁
	shaperTracker := shaper.NewTracker(
		shaper.NewTCSource(cfg.QoS.Device),
		cfg.QoS.ClassHigh, cfg.QoS.ClassMed, cfg.QoS.ClassLow,
	)
	ctx, cancel := context.WithCancel(context.Background())
	s := sampler.New(store, mqttClient, acc, tracker, shaperTracker,
		sampler.SystemCounters{}, sampler.NewWiFiClients(cfg.Sampler.Interface),
		sampler.Options{
			Interval:   time.Duration(cfg.Sampler.IntervalMS) * time.Millisecond,
			Iface:      cfg.Sampler.Interface,
			CapMbps:    cfg.Sampler.CapMbps,
			MaxClients: cfg.Sampler.MaxClients,
		})
	s.Run(ctx)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务...")
	cancel()

	// 给当前 tick 一点收尾时间
	time.Sleep(200 * time.Millisecond)

	if mqttClient.IsConnected() {
		mqttClient.Disconnect()
	}

	logger.Info("服务已关闭")
}
