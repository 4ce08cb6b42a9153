package model

import "time"

// StatusDTO 展示用的状态。StatusID 为原始状态 id，TimelineID 为线上条目 id。
type StatusDTO struct {
	StatusID          string       `json:"statusId"`
	TimelineID        string       `json:"timelineId"`
	Type              StatusType   `json:"type"`
	Login             string       `json:"login"`
	Username          string       `json:"username"`
	FirstName         string       `json:"firstName,omitempty"`
	LastName          string       `json:"lastName,omitempty"`
	Avatar            string       `json:"avatar,omitempty"`
	Activated         bool         `json:"activated"`
	Content           string       `json:"content"`
	StatusPrivate     bool         `json:"statusPrivate"`
	GroupID           string       `json:"groupId,omitempty"`
	GroupName         string       `json:"groupName,omitempty"`
	PublicGroup       bool         `json:"publicGroup"`
	ReplyTo           string       `json:"replyTo,omitempty"`
	ReplyToUsername   string       `json:"replyToUsername,omitempty"`
	DiscussionID      string       `json:"discussionId,omitempty"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	Favorite          bool         `json:"favorite"`
	FavoriteCount     int64        `json:"favoriteCount"`
	ReplyCount        int64        `json:"replyCount"`
	LastReplyUsername string       `json:"lastReplyUsername,omitempty"`
	ShareByMe         bool         `json:"shareByMe"`
	SharedByUsername  string       `json:"sharedByUsername,omitempty"`
	StatusDate        time.Time    `json:"statusDate"`
	GeoLocalization   string       `json:"geoLocalization,omitempty"`
	State             string       `json:"state,omitempty"`
	DetailsAvailable  bool         `json:"detailsAvailable"`
}

type StatusDetails struct {
	StatusID           string      `json:"statusId"`
	SharedByLogins     []User      `json:"sharedByLogins"`
	DiscussionStatuses []StatusDTO `json:"discussionStatuses"`
}

// Page CleanupPending 表示过期条目没有清理干净，调用方可以稍后重试。
type Page struct {
	Statuses       []StatusDTO `json:"statuses"`
	CleanupPending bool        `json:"cleanupPending,omitempty"`
}
