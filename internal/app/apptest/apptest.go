// Package apptest 在内存 SQLite、miniredis 和假 kafka writer 上组装完整的 App。
package apptest

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"Lee_Timeline/internal/app"
	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/pkg"
	"Lee_Timeline/internal/pkg/logger"
	"Lee_Timeline/internal/repository/mysql/mysqltest"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

const Domain = "acme.com"

// Writer 记录写入的消息
type Writer struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *Writer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *Writer) Close() error { return nil }

func (w *Writer) Messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type Env struct {
	App    *app.App
	MR     *miniredis.Miniredis
	Outbox *Writer
	Index  *Writer
}

// Config 测试用配置，页大小和重试次数与默认值一致
func Config(features config.Features) *config.Config {
	return &config.Config{
		Env:      "local",
		JWT:      config.JWTConfig{Secret: "test-secret", AccessTTL: time.Hour},
		Kafka:    config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, OutboxTopic: "social-events", IndexTopic: "status-index"},
		Features: features,
		Timeline: config.TimelineConfig{
			DefaultPageSize:    20,
			MaxPageSize:        100,
			MaxResolveAttempts: 3,
			DeleteWorkers:      2,
			HashtagDefault:     "welcome",
		},
		Jobs: config.JobsConfig{
			OutboxInterval:    time.Second,
			OutboxBatch:       100,
			ReconcileInterval: time.Minute,
			ReconcileBatch:    100,
			PurgeInterval:     time.Hour,
			PurgeBatch:        100,
		},
	}
}

func New(t testing.TB, features config.Features) *Env {
	t.Helper()
	db := mysqltest.New(t)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := &Env{MR: mr, Outbox: &Writer{}, Index: &Writer{}}
	cfg := Config(features)
	e.App = app.Assemble(cfg, logger.New("local", io.Discard), db, rdb,
		pkg.NewKafkaProducerWithWriter(e.Outbox, cfg.Kafka.OutboxTopic),
		pkg.NewKafkaProducerWithWriter(e.Index, cfg.Kafka.IndexTopic))
	return e
}

// User 创建已激活用户
func (e *Env) User(t testing.TB, username string, admin bool) *model.User {
	t.Helper()
	u := &model.User{Username: username, Domain: Domain, FirstName: username, Activated: true, Admin: admin}
	require.NoError(t, e.App.Stores.Users.Create(context.Background(), u))
	return u
}

// Token 为用户签发 token
func (e *Env) Token(t testing.TB, u *model.User) string {
	t.Helper()
	token, err := e.App.Sessions.IssueToken(context.Background(), u.Login)
	require.NoError(t, err)
	return token
}
