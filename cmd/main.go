package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"quote-ingestor/internal/api"
	"quote-ingestor/internal/collector"
	"quote-ingestor/internal/scheduler"
	"quote-ingestor/internal/service"
	"quote-ingestor/internal/session"
	"quote-ingestor/internal/storage"
)

func main() {
	configPath := "config"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := service.LoadConfig(configPath)
	if err != nil {
		// 配置错误在日志初始化之前发生，先用默认级别输出
		service.InitLogger("info")
		service.Logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	service.InitLogger(cfg.Log.Level)
	defer service.Logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		service.Logger.Fatal("Invalid market timezone", zap.String("timezone", cfg.Market.Timezone), zap.Error(err))
	}
	checkHour, checkMinute, err := service.ParseClock(cfg.Market.CalendarCheckAt)
	if err != nil {
		service.Logger.Fatal("Invalid calendar check time", zap.String("at", cfg.Market.CalendarCheckAt), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 存储：轮询数据按 backend 落地，推送流固定写 MongoDB
	sink, closers := buildSink(ctx, cfg)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, c := range closers {
			if err := c.Close(closeCtx); err != nil {
				service.Logger.Warn("Failed to close sink", zap.Error(err))
			}
		}
	}()

	// 2. 券商客户端
	client := api.NewClient(cfg.Tradier.BaseURL, cfg.Tradier.Token, cfg.Tradier.Timeout, service.Logger)

	// 3. 调度器
	sched := scheduler.New(service.Logger)

	// 4. 交易时段控制器：每日检查日历，开盘期间按分钟轮询报价
	pipeline := collector.NewPipeline(collector.NewCollector(client, service.Logger), sink,
		cfg.Market.Symbols, cfg.Market.Destination, service.Logger)
	controller := session.NewController(session.Config{
		CheckHour:    checkHour,
		CheckMinute:  checkMinute,
		Location:     loc,
		PollInterval: cfg.Market.PollInterval,
		Tag:          cfg.Market.Tag,
	}, sched, api.NewCalendarAdapter(client, loc), pipeline, service.Logger)
	controller.Start()
	// 启动时立即检查一次，盘中重启不用等到次日
	controller.CheckMarket(ctx)

	// 5. 可选：历史日线补齐 (一次性)、期权到期日与期权链 (每日)
	if cfg.Backfill.Enabled {
		backfill := collector.NewBackfill(client, sink, cfg.Backfill.Destination, service.Logger)
		sched.Schedule(scheduler.At(time.Now()), func(ctx context.Context) error {
			if err := backfill.Run(ctx, cfg.Market.Symbols, time.Now().In(loc), cfg.Backfill.Days); err != nil {
				service.Logger.Error("Backfill failed", zap.Error(err))
			}
			return nil
		}, "backfill")
	}
	if cfg.Expirations.Enabled {
		hour, minute, err := service.ParseClock(cfg.Expirations.At)
		if err != nil {
			service.Logger.Fatal("Invalid expirations schedule", zap.String("at", cfg.Expirations.At), zap.Error(err))
		}
		expirations := collector.NewExpirations(client, sink, cfg.Market.Symbols, cfg.Expirations.Destination, service.Logger)
		sched.Schedule(scheduler.DailyAt(hour, minute, loc), expirations.Poll, "expirations")
	}
	if cfg.Chains.Enabled {
		hour, minute, err := service.ParseClock(cfg.Chains.At)
		if err != nil {
			service.Logger.Fatal("Invalid option chains schedule", zap.String("at", cfg.Chains.At), zap.Error(err))
		}
		chains := collector.NewOptionChains(client, sink, cfg.Market.Symbols, cfg.Chains.Depth, cfg.Chains.Destination, service.Logger)
		sched.Schedule(scheduler.DailyAt(hour, minute, loc), chains.Poll, "option_chains")
	}

	// defer 逆序执行：先停调度循环并等待进行中的任务结束，再关闭存储
	stopSched := sched.Start(cfg.Scheduler.TickInterval)
	defer stopSched()

	// 6. 可选：推送流
	streamDone := make(chan struct{})
	if cfg.Stream.Enabled {
		events, err := storage.NewMongoSink(ctx, cfg.Mongo.URI, cfg.Stream.Database, service.Logger)
		if err != nil {
			service.Logger.Fatal("Failed to connect stream storage", zap.Error(err))
		}
		closers = append(closers, events)

		streamer := api.NewStreamer(api.StreamConfig{
			URL:            cfg.Tradier.StreamURL,
			Symbols:        cfg.Stream.Symbols,
			ReconnectDelay: cfg.Stream.ReconnectDelay,
			Collection:     cfg.Stream.Collection,
		}, client, api.NewWSDialer(), events, service.Logger)
		go func() {
			defer close(streamDone)
			streamer.Run(ctx)
		}()
	} else {
		close(streamDone)
	}

	service.Logger.Info("Quote ingestor started",
		zap.Strings("symbols", cfg.Market.Symbols),
		zap.String("backend", cfg.Storage.Backend),
		zap.Bool("stream", cfg.Stream.Enabled))

	<-ctx.Done()
	service.Logger.Info("Shutting down")
	<-streamDone
}

// buildSink 根据 Storage.Backend 创建轮询数据的存储
func buildSink(ctx context.Context, cfg *service.Config) (storage.Sink, []storage.Sink) {
	switch cfg.Storage.Backend {
	case "mongo":
		sink, err := storage.NewMongoSink(ctx, cfg.Mongo.URI, cfg.Mongo.Database, service.Logger)
		if err != nil {
			service.Logger.Fatal("Failed to connect MongoDB", zap.Error(err))
		}
		return sink, []storage.Sink{sink}
	default:
		sink := storage.NewInfluxSink(storage.InfluxConfig{
			URL:   cfg.Influx.URL,
			Token: cfg.Influx.Token,
			Org:   cfg.Influx.Org,
		}, service.Logger)
		if err := sink.Ping(ctx); err != nil {
			// InfluxDB 暂时不可用时继续运行，写入失败会在每次轮询中记录
			service.Logger.Warn("InfluxDB not reachable at startup", zap.Error(err))
		}
		return sink, []storage.Sink{sink}
	}
}
