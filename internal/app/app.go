// Package app 组装存储、消息和服务，cmd 下的各个入口共用。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/pkg"
	"Lee_Timeline/internal/repository/mysql"
	"Lee_Timeline/internal/repository/redis"
	"Lee_Timeline/internal/service"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type App struct {
	Cfg *config.Config
	Log *slog.Logger

	DB     *gorm.DB
	Redis  *goredis.Client
	Stores *service.Stores

	Outbox   *pkg.KafkaProducer
	Index    *pkg.KafkaProducer
	Notifier *redis.Notifier

	Sessions   *service.SessionService
	Updates    *service.StatusUpdateService
	Timeline   *service.TimelineService
	Friends    *service.FriendshipService
	Groups     *service.GroupService
	Relayer    *service.OutboxRelayer
	Reconciler *service.CounterReconciler
	Purger     *service.ExpiryPurger
}

// New 建立连接并构造全部服务，失败时已打开的资源会被关闭
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	const op = "app.New"

	db, err := mysql.Open(ctx, cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.MySQL.AutoMigrate {
		if err := mysql.AutoMigrate(db); err != nil {
			closeDB(db)
			return nil, fmt.Errorf("%s: migrate: %w", op, err)
		}
		log.Info("mysql_migrated")
	}
	rdb, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	outbox := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.OutboxTopic})
	// 索引消息丢了可以重建，不等待确认
	index := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.IndexTopic, Async: true})
	return Assemble(cfg, log, db, rdb, outbox, index), nil
}

// Assemble 用已建立的连接构造服务
func Assemble(cfg *config.Config, log *slog.Logger, db *gorm.DB, rdb *goredis.Client, outbox, index *pkg.KafkaProducer) *App {
	a := &App{Cfg: cfg, Log: log, DB: db, Redis: rdb, Outbox: outbox, Index: index}
	a.Notifier = &redis.Notifier{RDB: rdb}
	a.wire()
	return a
}

func (a *App) wire() {
	cfg := a.Cfg
	a.Stores = service.NewStores(a.DB, a.Redis, cfg.Features)
	sessions := &redis.SessionRepository{RDB: a.Redis, TTL: cfg.JWT.AccessTTL}
	jwt := pkg.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTTL)

	a.Sessions = service.NewSessionService(a.Stores.Users, sessions, jwt)
	a.Updates = service.NewStatusUpdateService(a.Stores, pkg.NewKafkaIndexer(a.Index), a.Notifier, cfg.Timeline)
	a.Timeline = service.NewTimelineService(a.Stores, cfg.Timeline)
	a.Friends = service.NewFriendshipService(a.Stores, a.Notifier, cfg.Features)
	a.Groups = service.NewGroupService(a.Stores)
	a.Relayer = service.NewOutboxRelayer(a.Stores.Outbox, service.KafkaSender(a.Outbox), cfg.Jobs, a.Log)
	a.Reconciler = service.NewCounterReconciler(a.Stores.Reconcile, a.Stores.Counters, cfg.Jobs, a.Log)
	a.Purger = service.NewExpiryPurger(a.Stores, cfg.Jobs, a.Log)
}

// Close 关闭顺序与打开相反
func (a *App) Close() error {
	var errs []error
	if err := a.Index.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Outbox.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Redis.Close(); err != nil {
		errs = append(errs, err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
