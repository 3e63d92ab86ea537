package job

import (
	"context"
	"log/slog"

	config "github.com/postpilothq/postpilot/configs"
	"github.com/postpilothq/postpilot/internal/quota"
	"github.com/postpilothq/postpilot/internal/repository"
)

// QuotaAlertJob evaluates owner usage against alert thresholds off the
// dispatch path and logs crossings for the alerting pipeline to pick up.
type QuotaAlertJob struct {
	cfg  config.Config
	gate quota.Gate
	cr   repository.ConnectionRepository
}

func NewQuotaAlertJob(cfg config.Config, gate quota.Gate, cr repository.ConnectionRepository) *QuotaAlertJob {
	return &QuotaAlertJob{cfg: cfg, gate: gate, cr: cr}
}

// EvaluateOwner reports threshold crossings for one owner.
func (j *QuotaAlertJob) EvaluateOwner(ctx context.Context, ownerID int64) ([]quota.Alert, error) {
	usage, err := j.gate.Usage(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	limits := quota.Limits{
		PerMinute: j.cfg.Quota.PerMinute,
		PerHour:   j.cfg.Quota.PerHour,
		PerDay:    j.cfg.Quota.PerDay,
	}

	alerts := quota.EvaluateAlerts(usage, limits, j.cfg.Quota.AlertThreshold)
	for _, alert := range alerts {
		slog.Warn("publish quota threshold crossed",
			"owner_id", ownerID, "window", alert.Window,
			"used", alert.Used, "budget", alert.Budget)
	}
	return alerts, nil
}
