package dispatch

import (
	"context"

	"github.com/classnotify/notify-backend/pkg/logx"
	"github.com/classnotify/notify-backend/pkg/metrics"
)

// StatusCallback carries the fields of an inbound SMS delivery-status
// callback (Twilio form encoding: MessageSid, MessageStatus, To,
// ErrorMessage).
type StatusCallback struct {
	SID          string
	Status       string
	To           string
	ErrorMessage string
}

type LogUpdater interface {
	UpdateLogStatusBySID(ctx context.Context, sid string, status bool) (int64, error)
}

// Reconciler applies asynchronous delivery-status callbacks to existing log
// rows. It never creates rows; it only flips status on the row matching the
// sid captured at send time.
type Reconciler struct {
	Logs LogUpdater
}

func NewReconciler(logs LogUpdater) *Reconciler { return &Reconciler{Logs: logs} }

// Terminal signal classes. Anything outside both sets (queued, sending,
// accepted, ...) is an intermediate signal and is ignored.
var (
	deliveredStatuses = map[string]bool{"delivered": true, "sent": true}
	failedStatuses    = map[string]bool{"failed": true, "undelivered": true}
)

// Apply is idempotent: re-applying the same terminal signal writes the same
// value again. Unknown sids are a silent no-op; callbacks can arrive for
// sends this environment never made.
func (r *Reconciler) Apply(ctx context.Context, cb StatusCallback) error {
	var status bool
	switch {
	case deliveredStatuses[cb.Status]:
		status = true
	case failedStatuses[cb.Status]:
		status = false
	default:
		metrics.StatusCallbacksTotal.WithLabelValues("ignored").Inc()
		logx.L().Debugw("status_callback_ignored", "sid", cb.SID, "status", cb.Status)
		return nil
	}

	n, err := r.Logs.UpdateLogStatusBySID(ctx, cb.SID, status)
	if err != nil {
		metrics.StatusCallbacksTotal.WithLabelValues("error").Inc()
		logx.L().Errorw("status_callback_update_failed", "sid", cb.SID, "error", err)
		return err
	}
	if n == 0 {
		metrics.StatusCallbacksTotal.WithLabelValues("unknown_sid").Inc()
		logx.L().Infow("status_callback_unknown_sid", "sid", cb.SID, "status", cb.Status, "to", cb.To)
		return nil
	}

	metrics.StatusCallbacksTotal.WithLabelValues("applied").Inc()
	logx.L().Infow("status_callback_applied",
		"sid", cb.SID, "status", cb.Status, "delivered", status, "to", cb.To, "provider_error", cb.ErrorMessage)
	return nil
}
