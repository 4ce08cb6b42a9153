package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type StatusType string

const (
	TypeStatus        StatusType = "STATUS"
	TypeShare         StatusType = "SHARE"
	TypeAnnouncement  StatusType = "ANNOUNCEMENT"
	TypeMentionFriend StatusType = "MENTION_FRIEND"
	TypeMentionShare  StatusType = "MENTION_SHARE"
	TypeFavoriteShare StatusType = "FAVORITE_SHARE"
	TypeFriendRequest StatusType = "FRIEND_REQUEST"
)

// 审核状态。APPROVED 只出现在审核表里，状态本身会被清空。
const (
	StatePending  = "PENDING"
	StateApproved = "APPROVED"
	StateBlocked  = "BLOCKED"
)

// 好友请求协议状态，存放在 FRIEND_REQUEST 的 content 字段
const (
	RequestPending  = "PENDING"
	RequestAccepted = "ACCEPTED"
	RequestRejected = "REJECTED"
)

const (
	MaxContentLength = 4096
	GroupNull        = "GROUP_NULL"

	// BlockedRetention 被屏蔽的状态只保留 90 天
	BlockedRetention = 90 * 24 * time.Hour
	// LongRetention 其余状态约 20 年
	LongRetention = 630720000 * time.Second
)

// ParseStatusType 校验外部传入的类型字符串
func ParseStatusType(s string) (StatusType, error) {
	t := StatusType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := decoders[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatusType, s)
	}
	return t, nil
}

// NewStatusID 生成按时间有序的 UUIDv7，字符串字典序即创建顺序。
func NewStatusID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Status 多态状态：公共字段 + 与 Type 对应的唯一一个载荷。
type Status struct {
	StatusID        string
	Type            StatusType
	Login           string
	Username        string
	Domain          string
	StatusDate      time.Time
	GeoLocalization string
	Removed         bool
	State           string

	Post    *Post      // STATUS
	Ref     *Reference // SHARE / ANNOUNCEMENT / MENTION_SHARE / FAVORITE_SHARE
	Mention *Mention   // MENTION_FRIEND / FRIEND_REQUEST
}

type Post struct {
	Content         string
	StatusPrivate   bool
	GroupID         string
	HasAttachments  bool
	DiscussionID    string
	ReplyTo         string
	ReplyToUsername string
}

type Reference struct {
	OriginalStatusID string
	// FAVORITE_SHARE 时为点赞人
	FollowerLogin string
}

type Mention struct {
	FollowerLogin string
	RequestState  string
}

// IsReply 是否为回复
func (s *Status) IsReply() bool {
	return s.Post != nil && s.Post.ReplyTo != ""
}

// StatusRecord statuses 表的一行，type 列作为判别字段。
type StatusRecord struct {
	StatusID         string `gorm:"primaryKey;size:36"`
	Type             string `gorm:"size:20;not null"`
	Login            string `gorm:"size:128;not null;index:idx_status_login"`
	Username         string `gorm:"size:64;not null"`
	Domain           string `gorm:"size:64;not null"`
	StatusDate       time.Time
	GeoLocalization  string `gorm:"size:64"`
	Removed          bool   `gorm:"not null"`
	State            string `gorm:"size:16;not null"`
	Content          string `gorm:"type:text"`
	StatusPrivate    bool   `gorm:"not null"`
	GroupID          string `gorm:"size:36"`
	HasAttachments   bool   `gorm:"not null"`
	DiscussionID     string `gorm:"size:36"`
	ReplyTo          string `gorm:"size:36"`
	ReplyToUsername  string `gorm:"size:64"`
	OriginalStatusID string `gorm:"size:36"`
	FollowerLogin    string `gorm:"size:128"`

	ExpiresAt time.Time `gorm:"not null;index:idx_status_expires"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (StatusRecord) TableName() string { return "statuses" }

type decodeFunc func(r *StatusRecord, s *Status)

var decoders = map[StatusType]decodeFunc{
	TypeStatus:        decodePost,
	TypeShare:         decodeReference,
	TypeAnnouncement:  decodeReference,
	TypeMentionShare:  decodeReference,
	TypeFavoriteShare: decodeReference,
	TypeMentionFriend: decodeMention,
	TypeFriendRequest: decodeMention,
}

func decodePost(r *StatusRecord, s *Status) {
	s.Post = &Post{
		Content:         r.Content,
		StatusPrivate:   r.StatusPrivate,
		GroupID:         r.GroupID,
		HasAttachments:  r.HasAttachments,
		DiscussionID:    r.DiscussionID,
		ReplyTo:         r.ReplyTo,
		ReplyToUsername: r.ReplyToUsername,
	}
}

// FollowerLogin 只有 FAVORITE_SHARE 会写入
func decodeReference(r *StatusRecord, s *Status) {
	s.Ref = &Reference{OriginalStatusID: r.OriginalStatusID, FollowerLogin: r.FollowerLogin}
}

func decodeMention(r *StatusRecord, s *Status) {
	s.Mention = &Mention{FollowerLogin: r.FollowerLogin, RequestState: r.Content}
}

// ToStatus 根据 type 还原具体变体，未知类型返回 ErrUnknownStatusType。
func (r *StatusRecord) ToStatus() (*Status, error) {
	decode, ok := decoders[StatusType(r.Type)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (status %s)", ErrUnknownStatusType, r.Type, r.StatusID)
	}
	s := &Status{
		StatusID:        r.StatusID,
		Type:            StatusType(r.Type),
		Login:           r.Login,
		Username:        r.Username,
		Domain:          r.Domain,
		StatusDate:      r.StatusDate,
		GeoLocalization: r.GeoLocalization,
		Removed:         r.Removed,
		State:           r.State,
	}
	decode(r, s)
	return s, nil
}

// ToRecord 把状态展开成表行
func (s *Status) ToRecord() *StatusRecord {
	r := &StatusRecord{
		StatusID:        s.StatusID,
		Type:            string(s.Type),
		Login:           s.Login,
		Username:        s.Username,
		Domain:          s.Domain,
		StatusDate:      s.StatusDate,
		GeoLocalization: s.GeoLocalization,
		Removed:         s.Removed,
		State:           s.State,
	}
	switch {
	case s.Post != nil:
		r.Content = s.Post.Content
		r.StatusPrivate = s.Post.StatusPrivate
		r.GroupID = s.Post.GroupID
		r.HasAttachments = s.Post.HasAttachments
		r.DiscussionID = s.Post.DiscussionID
		r.ReplyTo = s.Post.ReplyTo
		r.ReplyToUsername = s.Post.ReplyToUsername
	case s.Ref != nil:
		r.OriginalStatusID = s.Ref.OriginalStatusID
		r.FollowerLogin = s.Ref.FollowerLogin
	case s.Mention != nil:
		r.FollowerLogin = s.Mention.FollowerLogin
		r.Content = s.Mention.RequestState
	}
	return r
}

// StatusDraft 创建 STATUS 的入参
type StatusDraft struct {
	Login           string
	Username        string
	Domain          string
	Private         bool
	GroupID         string
	AttachmentIDs   []string
	Content         string
	DiscussionID    string
	ReplyTo         string
	ReplyToUsername string
	Geo             string
	IsAdmin         bool
}

// Validate 在任何写入之前执行
func (d *StatusDraft) Validate() error {
	if d.Login == "" || d.Username == "" || d.Domain == "" {
		return fmt.Errorf("%w: login, username and domain are required", ErrValidationFailed)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: content must not be empty", ErrValidationFailed)
	}
	if utf8.RuneCountInString(d.Content) > MaxContentLength {
		return fmt.Errorf("%w: content longer than %d characters", ErrValidationFailed, MaxContentLength)
	}
	return nil
}
