package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PipelineRun tracks one pipeline run and its outcome.
type PipelineRun struct {
	bun.BaseModel `bun:"table:pipeline_runs,alias:pr"`

	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	RunID         string     `bun:"run_id,unique,notnull" json:"run_id"`
	DAGID         string     `bun:"dag_id,notnull" json:"dag_id"`
	ExecutionDate time.Time  `bun:"execution_date,notnull" json:"execution_date"`
	StartTime     time.Time  `bun:"start_time,notnull" json:"start_time"`
	EndTime       *time.Time `bun:"end_time" json:"end_time,omitempty"`
	Status        RunStatus  `bun:"status,notnull" json:"status"`
	RowsExtracted int        `bun:"rows_extracted,notnull,default:0" json:"rows_extracted"`
	RowsLoaded    int        `bun:"rows_loaded,notnull,default:0" json:"rows_loaded"`
	FailedStep    *string    `bun:"failed_step" json:"failed_step,omitempty"`
	ErrorLog      *string    `bun:"error_log" json:"error_log,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// StageExchange holds the payload one step hands to the next when steps run
// as separate processes.
type StageExchange struct {
	bun.BaseModel `bun:"table:stage_exchanges,alias:se"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	RunID       string    `bun:"run_id,notnull,unique:run_exchange_key" json:"run_id"`
	ExchangeKey string    `bun:"exchange_key,notnull,unique:run_exchange_key" json:"exchange_key"`
	Payload     string    `bun:"payload,type:text,notnull" json:"payload"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}
