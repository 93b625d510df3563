// Package events appends rows to the plan-generation journal.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records one journal row. A nil tx writes directly on the DB.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, planID, area, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return w.DB.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO events(ts,type,plan_id,area,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, nullable(planID), nullable(area), actorID, string(data))
	return err
}

// PlanGenerated records a finished plan build.
func (w Writer) PlanGenerated(ctx context.Context, planID, area, actorID, source string, itemCount int) error {
	return w.Append(ctx, nil, "plan.generated", planID, area, actorID, EventPayload{
		"source":     source,
		"item_count": itemCount,
	})
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
