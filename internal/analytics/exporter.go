package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/common/metrics"
	"trialist-agent/internal/common/validation"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/models"
	"trialist-agent/internal/qualification"
	"trialist-agent/internal/resilience"
)

const (
	ServicePrefix  = "analytics"
	defaultTimeout = 10 * time.Second
)

// Sink receives the serialised session export.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, export *models.SessionExport, payload []byte) error
}

// Dispatcher hands a prepared export to the sinks, now or later.
type Dispatcher interface {
	Dispatch(ctx context.Context, export *models.SessionExport) error
}

type Config struct {
	HotLeadTeam   int
	HotLeadVolume int
	Timeout       time.Duration
}

// Report lists the sinks that took or refused an export.
type Report struct {
	Delivered []string `json:"delivered"`
	Failed    []string `json:"failed,omitempty"`
}

// Exporter builds session exports and fans them out to every sink. Sink
// failures are logged and swallowed; a session close never fails because of
// analytics.
type Exporter struct {
	sinks     []Sink
	responder *resilience.Responder
	schemas   *validation.SchemaValidator
	cfg       Config
	logger    logger.Logger
}

func NewExporter(sinks []Sink, responder *resilience.Responder, cfg Config, log logger.Logger) (*Exporter, error) {
	if cfg.HotLeadTeam <= 0 {
		cfg.HotLeadTeam = 5
	}
	if cfg.HotLeadVolume <= 0 {
		cfg.HotLeadVolume = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	schemas := validation.NewSchemaValidator()
	if err := schemas.Register(exportSchemaName, exportSchema); err != nil {
		return nil, err
	}

	return &Exporter{
		sinks:     sinks,
		responder: responder,
		schemas:   schemas,
		cfg:       cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "analytics_exporter"}),
	}, nil
}

func (e *Exporter) Sinks() []string {
	names := make([]string, 0, len(e.sinks))
	for _, s := range e.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Prepare builds the export for a closing session and flags hot leads.
func (e *Exporter) Prepare(sess *conversation.Session, closeReason string) *models.SessionExport {
	export := sess.Export(closeReason)
	export.HotLead = qualification.IsHotLead(export.Signals, e.cfg.HotLeadTeam, e.cfg.HotLeadVolume)

	if export.HotLead {
		fields := map[string]interface{}{
			"session_id": export.SessionID,
			"tier":       string(export.QualificationTier),
		}
		if export.Signals.TeamSize != nil {
			fields["team_size"] = *export.Signals.TeamSize
		}
		if export.Signals.MonthlyVolume != nil {
			fields["monthly_volume"] = *export.Signals.MonthlyVolume
		}
		e.logger.Info("hot lead detected", fields)
	}
	return &export
}

// Encode validates the export and serialises it.
func (e *Exporter) Encode(export *models.SessionExport) ([]byte, error) {
	res, err := e.schemas.Validate(exportSchemaName, export)
	if err != nil {
		return nil, errors.NewExportFailedError("schema", err)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(export)
	if err != nil {
		return nil, errors.NewExportFailedError("encode", err)
	}
	return payload, nil
}

// Deliver validates and sends export to every sink under the breaker and
// retry policy. It never returns an error; the report says what happened.
func (e *Exporter) Deliver(ctx context.Context, export *models.SessionExport) Report {
	var report Report
	log := e.logger.WithFields(map[string]interface{}{"session_id": export.SessionID})

	payload, err := e.Encode(export)
	if err != nil {
		log.Error("session export rejected", map[string]interface{}{"error": err.Error()})
		for _, s := range e.sinks {
			metrics.AnalyticsDeliveries.WithLabelValues(s.Name(), "invalid").Inc()
			report.Failed = append(report.Failed, s.Name())
		}
		return report
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	for _, sink := range e.sinks {
		sink := sink
		call := resilience.Call{
			Service:  ServicePrefix + ":" + sink.Name(),
			Category: resilience.CategoryToolFailure,
		}
		_, err := resilience.Run(ctx, e.responder, nil, call, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, sink.Deliver(ctx, export, payload)
		})
		if err != nil {
			metrics.AnalyticsDeliveries.WithLabelValues(sink.Name(), "failed").Inc()
			report.Failed = append(report.Failed, sink.Name())
			fields := map[string]interface{}{"sink": sink.Name()}
			if re, ok := resilience.AsRecoveryError(err); ok && re.Unwrap() != nil {
				fields["error"] = re.Unwrap().Error()
			}
			log.Warn("analytics sink failed", fields)
			continue
		}
		metrics.AnalyticsDeliveries.WithLabelValues(sink.Name(), "delivered").Inc()
		report.Delivered = append(report.Delivered, sink.Name())
	}

	log.Info("session exported", map[string]interface{}{
		"delivered": len(report.Delivered),
		"failed":    len(report.Failed),
		"hot_lead":  export.HotLead,
	})
	return report
}

// DirectDispatcher delivers in a background goroutine on a context detached
// from the caller, so closing a session does not wait on the sinks.
type DirectDispatcher struct {
	exporter *Exporter
	wg       sync.WaitGroup
	onReport func(*models.SessionExport, Report)
}

func NewDirectDispatcher(exporter *Exporter) *DirectDispatcher {
	return &DirectDispatcher{exporter: exporter}
}

// OnReport registers a callback run after each background delivery.
func (d *DirectDispatcher) OnReport(fn func(*models.SessionExport, Report)) {
	d.onReport = fn
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, export *models.SessionExport) error {
	if export == nil {
		return fmt.Errorf("nil export")
	}
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		report := d.exporter.Deliver(detached, export)
		if d.onReport != nil {
			d.onReport(export, report)
		}
	}()
	return nil
}

// Wait blocks until every dispatched export has been delivered.
func (d *DirectDispatcher) Wait() {
	d.wg.Wait()
}
