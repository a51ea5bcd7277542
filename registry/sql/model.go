package sql

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/romanqed/qjazz/registry"
)

type recordModel struct {
	bun.BaseModel `bun:"table:registry_records"`

	JobID     string `bun:"job_id,pk"`
	Service   string `bun:"service,notnull"`
	Realm     string `bun:"realm,notnull"`
	ProcessID string `bun:"process_id,notnull"`

	CreatedAt      time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	Dismissed      bool          `bun:"dismissed,notnull,default:false"`
	PendingTimeout time.Duration `bun:"pending_timeout,notnull,default:0"`
	Tag            string        `bun:"tag,notnull,default:''"`
	ExpiresAt      time.Time     `bun:"expires_at,notnull"`
}

func (m *recordModel) toRecord() registry.Record {
	return registry.Record{
		JobID:          m.JobID,
		Service:        m.Service,
		Realm:          m.Realm,
		ProcessID:      m.ProcessID,
		Created:        m.CreatedAt,
		Dismissed:      m.Dismissed,
		PendingTimeout: m.PendingTimeout,
		Tag:            m.Tag,
		ExpiresAt:      m.ExpiresAt,
	}
}

func fromRecord(rec registry.Record) *recordModel {
	return &recordModel{
		JobID:          rec.JobID,
		Service:        rec.Service,
		Realm:          rec.Realm,
		ProcessID:      rec.ProcessID,
		CreatedAt:      rec.Created,
		Dismissed:      rec.Dismissed,
		PendingTimeout: rec.PendingTimeout,
		Tag:            rec.Tag,
		ExpiresAt:      rec.ExpiresAt,
	}
}
