package model

import "time"

// Friendship 关注关系：FollowerLogin 关注 FriendLogin。
type Friendship struct {
	ID            uint64 `gorm:"primaryKey"`
	FollowerLogin string `gorm:"size:128;not null;uniqueIndex:uk_friendship_pair;index:idx_friendship_follower"`
	FriendLogin   string `gorm:"size:128;not null;uniqueIndex:uk_friendship_pair;index:idx_friendship_friend"`
	Status        int8   `gorm:"not null;comment:'1=follow,0=unfollow'"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Friendship) TableName() string { return "friendships" }

// FriendRequest 双向确认模式下尚未处理的好友请求，Login 为发起人。
type FriendRequest struct {
	ID          uint64 `gorm:"primaryKey"`
	Login       string `gorm:"size:128;not null;uniqueIndex:uk_friend_request_pair;index:idx_friend_request_from"`
	FriendLogin string `gorm:"size:128;not null;uniqueIndex:uk_friend_request_pair;index:idx_friend_request_to"`
	StatusID    string `gorm:"size:36;not null"`
	CreatedAt   time.Time
}

func (FriendRequest) TableName() string { return "friend_requests" }

// SocialOutbox 关系事件表，与关系变更同事务写入，由 relayer 投递到 kafka。
type SocialOutbox struct {
	ID        uint64 `gorm:"primaryKey"`
	EventType string `gorm:"size:32;not null"` // follow / unfollow / friend_request
	Follower  string `gorm:"size:128;not null"`
	Followee  string `gorm:"size:128;not null"`
	Payload   string `gorm:"type:text;not null"`
	Status    int8   `gorm:"not null;index:idx_outbox_status;comment:'0=pending,1=sent,2=failed'"`
	Retry     int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SocialOutbox) TableName() string { return "social_outbox" }
