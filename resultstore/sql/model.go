package sql

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/romanqed/qjazz/resultstore"
)

type taskMetaModel struct {
	bun.BaseModel `bun:"table:task_meta"`

	TaskID    string               `bun:"task_id,pk"`
	State     resultstore.TaskState `bun:"state,notnull,default:0"`
	Progress  int                  `bun:"progress,notnull,default:0"`
	Message   string               `bun:"message,notnull,default:''"`
	Result    json.RawMessage      `bun:"result,type:jsonb"`
	Exception string               `bun:"exception,notnull,default:''"`
	Started   *time.Time           `bun:"started,nullzero"`
	Finished  *time.Time           `bun:"finished,nullzero"`
	UpdatedAt time.Time            `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt time.Time            `bun:"expires_at,notnull"`
}

func (m *taskMetaModel) toMeta() *resultstore.Meta {
	return &resultstore.Meta{
		TaskID:    m.TaskID,
		State:     m.State,
		Progress:  m.Progress,
		Message:   m.Message,
		Result:    m.Result,
		Exception: m.Exception,
		Started:   m.Started,
		Finished:  m.Finished,
		UpdatedAt: m.UpdatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}
