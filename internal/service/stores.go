package service

import (
	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/repository/mysql"
	"Lee_Timeline/internal/repository/redis"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Stores 服务层用到的全部存储，进程内共享一份
type Stores struct {
	Statuses    *mysql.StatusRepository
	States      *mysql.StatusStateGroupRepository
	Audits      *mysql.AuditRepository
	Users       *mysql.UserRepository
	Groups      *mysql.GroupRepository
	Attachments *mysql.AttachmentRepository
	Friendships *mysql.FriendshipRepository
	Requests    *mysql.FriendRequestRepository
	Outbox      *mysql.OutboxRepository
	Reconcile   *mysql.CounterReconcileRepository

	Lines    *redis.LineRepository
	Counters *redis.CounterRepository
	Shares   *redis.ShareRepository
	Replies  *redis.ReplyRepository
	Locks    *redis.DistLock
}

func NewStores(db *gorm.DB, rdb *goredis.Client, features config.Features) *Stores {
	return &Stores{
		Statuses:    &mysql.StatusRepository{DB: db, ModerationEnabled: features.ModerationEnabled},
		States:      &mysql.StatusStateGroupRepository{DB: db},
		Audits:      &mysql.AuditRepository{DB: db},
		Users:       &mysql.UserRepository{DB: db},
		Groups:      &mysql.GroupRepository{DB: db},
		Attachments: &mysql.AttachmentRepository{DB: db},
		Friendships: &mysql.FriendshipRepository{DB: db},
		Requests:    &mysql.FriendRequestRepository{DB: db},
		Outbox:      &mysql.OutboxRepository{DB: db},
		Reconcile:   &mysql.CounterReconcileRepository{DB: db},

		Lines:    &redis.LineRepository{RDB: rdb},
		Counters: &redis.CounterRepository{RDB: rdb},
		Shares:   &redis.ShareRepository{RDB: rdb},
		Replies:  &redis.ReplyRepository{RDB: rdb},
		Locks:    &redis.DistLock{RDB: rdb},
	}
}
