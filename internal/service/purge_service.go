package service

import (
	"context"
	"log/slog"
	"time"

	"Lee_Timeline/internal/config"
)

// ExpiryPurger 定期删除过了保留期的状态、审核条目和审计记录
type ExpiryPurger struct {
	st       *Stores
	batch    int
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewExpiryPurger(st *Stores, jobs config.JobsConfig, log *slog.Logger) *ExpiryPurger {
	return &ExpiryPurger{
		st:       st,
		batch:    jobs.PurgeBatch,
		interval: jobs.PurgeInterval,
		now:      time.Now,
		log:      log.With("job", "purge"),
	}
}

// PurgeReport 一轮清理删除的行数
type PurgeReport struct {
	Statuses int   `json:"statuses"`
	States   int64 `json:"states"`
	Audits   int64 `json:"audits"`
}

func (p *ExpiryPurger) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := p.PurgeOnce(ctx); err != nil {
				p.log.Error("purge failed", "err", err)
			}
		}
	}
}

// PurgeOnce 状态按批删除直到没有过期行，计数随状态一起清掉
func (p *ExpiryPurger) PurgeOnce(ctx context.Context) (PurgeReport, error) {
	now := p.now().UTC()
	var rep PurgeReport
	for {
		ids, err := p.st.Statuses.PurgeExpired(ctx, now, p.batch)
		if err != nil {
			return rep, err
		}
		for _, id := range ids {
			if err := p.st.Counters.DeleteCounters(ctx, id); err != nil {
				p.log.Warn("delete counters failed", "status_id", id, "err", err)
			}
		}
		rep.Statuses += len(ids)
		if len(ids) < p.batch {
			break
		}
	}

	var err error
	if rep.States, err = p.st.States.PurgeExpired(ctx, now); err != nil {
		return rep, err
	}
	if rep.Audits, err = p.st.Audits.PurgeExpired(ctx, now); err != nil {
		return rep, err
	}
	if rep.Statuses+int(rep.States)+int(rep.Audits) > 0 {
		p.log.Info("expired rows purged", "statuses", rep.Statuses, "states", rep.States, "audits", rep.Audits)
	}
	return rep, nil
}
