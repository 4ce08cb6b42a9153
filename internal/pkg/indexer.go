package pkg

import (
	"context"
	"encoding/json"
	"time"

	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/pkg/logger"
)

const (
	IndexOpUpsert = "index"
	IndexOpDelete = "delete"
)

// IndexDocument 发往搜索索引 topic 的文档，由外部消费者写入搜索引擎
type IndexDocument struct {
	Op     string           `json:"op"`
	Type   model.StatusType `json:"type,omitempty"`
	ID     string           `json:"id"`
	Fields *IndexFields     `json:"fields,omitempty"`
}

type IndexFields struct {
	Login         string    `json:"login"`
	Username      string    `json:"username"`
	Domain        string    `json:"domain"`
	Content       string    `json:"content"`
	GroupID       string    `json:"groupId,omitempty"`
	StatusPrivate bool      `json:"statusPrivate"`
	Tags          []string  `json:"tags,omitempty"`
	StatusDate    time.Time `json:"statusDate"`
}

// KafkaIndexer 搜索索引的生产者，失败只记录日志
type KafkaIndexer struct {
	producer *KafkaProducer
}

func NewKafkaIndexer(p *KafkaProducer) *KafkaIndexer {
	return &KafkaIndexer{producer: p}
}

// IndexStatus 只索引 STATUS
func (i *KafkaIndexer) IndexStatus(ctx context.Context, st *model.Status) {
	if st == nil || st.Post == nil {
		return
	}
	i.send(ctx, IndexDocument{
		Op:   IndexOpUpsert,
		Type: st.Type,
		ID:   st.StatusID,
		Fields: &IndexFields{
			Login:         st.Login,
			Username:      st.Username,
			Domain:        st.Domain,
			Content:       st.Post.Content,
			GroupID:       st.Post.GroupID,
			StatusPrivate: st.Post.StatusPrivate,
			Tags:          ExtractTags(st.Post.Content),
			StatusDate:    st.StatusDate,
		},
	})
}

func (i *KafkaIndexer) RemoveStatus(ctx context.Context, statusID string) {
	i.send(ctx, IndexDocument{Op: IndexOpDelete, ID: statusID})
}

func (i *KafkaIndexer) send(ctx context.Context, doc IndexDocument) {
	lg := logger.From(ctx).With("op", "pkg/indexer.send", "status_id", doc.ID, "index_op", doc.Op)
	payload, err := json.Marshal(doc)
	if err != nil {
		lg.Error("marshal index document", "err", err)
		return
	}
	if err := i.producer.Send(ctx, doc.ID, payload); err != nil {
		lg.Warn("index publish failed", "err", err)
	}
}
