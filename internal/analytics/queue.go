package analytics

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/models"

	"github.com/hibiken/asynq"
)

const TaskExportSession = "analytics.export_session"

func NewExportTask(export *models.SessionExport) (*asynq.Task, error) {
	data, err := json.Marshal(export)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExportSession, data), nil
}

func ParseExportTask(task *asynq.Task) (*models.SessionExport, error) {
	var export models.SessionExport
	if err := json.Unmarshal(task.Payload(), &export); err != nil {
		return nil, err
	}
	return &export, nil
}

// Enqueuer is the part of *asynq.Client used by QueueDispatcher.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher defers delivery to a QueueWorker through redis.
type QueueDispatcher struct {
	client   Enqueuer
	queue    string
	maxRetry int
	logger   logger.Logger
}

func NewQueueDispatcher(client Enqueuer, queue string, log logger.Logger) *QueueDispatcher {
	if queue == "" {
		queue = "analytics"
	}
	return &QueueDispatcher{
		client:   client,
		queue:    queue,
		maxRetry: 5,
		logger:   log.WithFields(map[string]interface{}{"component": "analytics_queue"}),
	}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, export *models.SessionExport) error {
	task, err := NewExportTask(export)
	if err != nil {
		return fmt.Errorf("build export task: %w", err)
	}
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.MaxRetry(d.maxRetry),
		asynq.TaskID(export.SessionID),
	)
	if stderrors.Is(err, asynq.ErrTaskIDConflict) {
		d.logger.Debug("export already queued", map[string]interface{}{"session_id": export.SessionID})
		return nil
	}
	if err != nil {
		d.logger.Error("export enqueue failed", map[string]interface{}{
			"session_id": export.SessionID,
			"error":      err.Error(),
		})
		return err
	}
	d.logger.Debug("export enqueued", map[string]interface{}{
		"session_id": export.SessionID,
		"task_id":    info.ID,
		"queue":      info.Queue,
	})
	return nil
}

// QueueWorker consumes export tasks and delivers them to the sinks.
type QueueWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	exporter *Exporter
	logger   logger.Logger
}

func NewQueueWorker(opt asynq.RedisConnOpt, queue string, concurrency int, exporter *Exporter, log logger.Logger) *QueueWorker {
	if queue == "" {
		queue = "analytics"
	}
	if concurrency < 1 {
		concurrency = 4
	}
	w := &QueueWorker{
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queue: 1},
		}),
		mux:      asynq.NewServeMux(),
		exporter: exporter,
		logger:   log.WithFields(map[string]interface{}{"component": "analytics_worker"}),
	}
	w.mux.HandleFunc(TaskExportSession, w.HandleExport)
	return w
}

// HandleExport delivers one queued export. Sink failures are already
// swallowed by the exporter, so only a malformed payload fails the task, and
// it is not retried.
func (w *QueueWorker) HandleExport(ctx context.Context, task *asynq.Task) error {
	export, err := ParseExportTask(task)
	if err != nil {
		w.logger.Error("malformed export task", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("parse export task: %v: %w", err, asynq.SkipRetry)
	}
	w.exporter.Deliver(ctx, export)
	return nil
}

// Run processes tasks until ctx is cancelled.
func (w *QueueWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		w.logger.Error("analytics worker failed to start", map[string]interface{}{"error": err.Error()})
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("analytics worker stopped", nil)
	return nil
}
