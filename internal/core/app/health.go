package app

import (
	"context"
	"fmt"
	"time"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	inspector *Inspector
}

func NewHealthService(inspector *Inspector) *HealthService {
	return &HealthService{inspector: inspector}
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}
	if err := ctx.Err(); err != nil {
		status.Status = "down"
		status.Components["context"] = err.Error()
		return status
	}

	if s.inspector == nil || s.inspector.cfg == nil {
		status.Status = "down"
		status.Components["inspector"] = "missing"
		return status
	}
	status.Components["inspector"] = "ok"

	if s.inspector.deps.History != nil {
		status.Components["history"] = "ok"
	} else if s.inspector.cfg.History.Enabled {
		status.Status = "degraded"
		status.Components["history"] = "missing but enabled in config"
	} else {
		status.Components["history"] = "disabled"
	}

	if last := s.inspector.LastReport(); last != nil {
		status.Components["last_run"] = fmt.Sprintf("ok (%d nodes, %d issues, %s ago)",
			last.Stats.Nodes, last.Stats.Issues, time.Since(last.StartedAt).Round(time.Second))
	} else {
		status.Components["last_run"] = "pending"
	}
	return status
}
