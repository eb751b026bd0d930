package analytics

import (
	"context"
	"database/sql"
	"fmt"

	awsclient "trialist-agent/internal/common/aws"
	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/segmentio/kafka-go"
)

// LogSink writes a structured summary of the export to the log.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.WithFields(map[string]interface{}{"component": "analytics_log_sink"})}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, export *models.SessionExport, payload []byte) error {
	s.logger.Info("session analytics", map[string]interface{}{
		"session_id":         export.SessionID,
		"qualification_tier": string(export.QualificationTier),
		"conversation_state": string(export.ConversationState),
		"tool_calls":         len(export.ToolCalls),
		"duration_seconds":   export.DurationSeconds,
		"hot_lead":           export.HotLead,
		"bytes":              len(payload),
		"key":                export.PartitionKey(),
	})
	return nil
}

// SNSSink publishes the export to a topic.
type SNSSink struct {
	publisher awsclient.Publisher
	topicARN  string
}

func NewSNSSink(publisher awsclient.Publisher, topicARN string) *SNSSink {
	return &SNSSink{publisher: publisher, topicARN: topicARN}
}

func (s *SNSSink) Name() string { return "sns" }

func (s *SNSSink) Deliver(ctx context.Context, export *models.SessionExport, payload []byte) error {
	_, err := s.publisher.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(payload)),
		Subject:  aws.String("session-export"),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"qualification_tier": {DataType: aws.String("String"), StringValue: aws.String(string(export.QualificationTier))},
			"hot_lead":           {DataType: aws.String("String"), StringValue: aws.String(fmt.Sprintf("%t", export.HotLead))},
		},
	})
	if err != nil {
		return errors.NewExportFailedError(s.Name(), err)
	}
	return nil
}

// MessageWriter is the part of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds a gzip-compressing writer for the export topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Compression:  kafka.Gzip,
		RequiredAcks: kafka.RequireOne,
	}
}

// KafkaSink streams exports keyed by their date partition.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, export *models.SessionExport, payload []byte) error {
	msg := kafka.Message{
		Key:   []byte(export.PartitionKey()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "session_id", Value: []byte(export.SessionID)},
			{Key: "content_type", Value: []byte("application/json")},
		},
		Time: export.EndedAt,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return errors.NewExportFailedError(s.Name(), err)
	}
	return nil
}

const upsertExportSQL = `INSERT INTO session_exports
	(session_id, started_at, ended_at, qualification_tier, conversation_state, hot_lead, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id) DO UPDATE SET
	ended_at = EXCLUDED.ended_at,
	qualification_tier = EXCLUDED.qualification_tier,
	conversation_state = EXCLUDED.conversation_state,
	hot_lead = EXCLUDED.hot_lead,
	payload = EXCLUDED.payload`

// PostgresSink upserts the export into the warehouse table.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Deliver(ctx context.Context, export *models.SessionExport, payload []byte) error {
	_, err := s.db.ExecContext(ctx, upsertExportSQL,
		export.SessionID,
		export.StartedAt,
		export.EndedAt,
		string(export.QualificationTier),
		string(export.ConversationState),
		export.HotLead,
		payload,
	)
	if err != nil {
		return errors.NewExportFailedError(s.Name(), err)
	}
	return nil
}
