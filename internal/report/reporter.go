// Package report forwards workflow progress outward to the external
// controller and renders in-page notifications on user-visible failures.
package report

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/crosslister/postflow/api/schemas"
	"github.com/crosslister/postflow/internal/dom"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter is the outward event channel of the orchestrator. Implementations
// must tolerate being called from a single goroutine in strict step order.
type Reporter interface {
	StepChanged(ctx context.Context, ev schemas.StepChangedEvent)
	Progress(ctx context.Context, ev schemas.ProgressEvent)
	Complete(ctx context.Context, ev schemas.CompleteEvent)
	Error(ctx context.Context, ev schemas.ErrorEvent)
	LoginDetected(ctx context.Context, ev schemas.LoginDetectedEvent)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) StepChanged(context.Context, schemas.StepChangedEvent)     {}
func (NopReporter) Progress(context.Context, schemas.ProgressEvent)           {}
func (NopReporter) Complete(context.Context, schemas.CompleteEvent)           {}
func (NopReporter) Error(context.Context, schemas.ErrorEvent)                 {}
func (NopReporter) LoginDetected(context.Context, schemas.LoginDetectedEvent) {}

// NATSReporter publishes events to per-type subjects under a prefix
// (<prefix>.events.workflow_step_changed and so on). Publish failures are
// logged, never propagated: reporting must not break the workflow.
type NATSReporter struct {
	nc     *nats.Conn
	prefix string
	log    *zap.Logger
}

// NewNATSReporter creates a reporter over an established connection.
func NewNATSReporter(nc *nats.Conn, prefix string, log *zap.Logger) *NATSReporter {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "postflow"
	}
	return &NATSReporter{nc: nc, prefix: prefix, log: log.Named("reporter")}
}

func (r *NATSReporter) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("Could not encode event.", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := r.nc.Publish(r.prefix+".events."+subject, data); err != nil {
		r.log.Warn("Could not publish event.", zap.String("subject", subject), zap.Error(err))
	}
}

func (r *NATSReporter) StepChanged(_ context.Context, ev schemas.StepChangedEvent) {
	r.publish("workflow_step_changed", ev)
}

func (r *NATSReporter) Progress(_ context.Context, ev schemas.ProgressEvent) {
	r.publish("update_progress", ev)
}

func (r *NATSReporter) Complete(_ context.Context, ev schemas.CompleteEvent) {
	r.publish("posting_complete", ev)
}

func (r *NATSReporter) Error(_ context.Context, ev schemas.ErrorEvent) {
	r.publish("posting_error", ev)
}

func (r *NATSReporter) LoginDetected(_ context.Context, ev schemas.LoginDetectedEvent) {
	r.publish("login_detected", ev)
}

// PageNotifier renders dismissible in-page toasts through the page itself,
// the user-visible half of failure reporting. Satisfies retry.Notifier.
type PageNotifier struct {
	page dom.Page
	log  *zap.Logger
}

func NewPageNotifier(page dom.Page, log *zap.Logger) *PageNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &PageNotifier{page: page, log: log.Named("notifier")}
}

func (n *PageNotifier) Notify(ctx context.Context, message string) {
	if err := n.page.ShowToast(ctx, message); err != nil {
		n.log.Warn("Could not render in-page notification.", zap.Error(err))
	}
}
