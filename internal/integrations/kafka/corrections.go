// Package kafka publishes expert corrections for downstream training jobs.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"vintagevision/internal/domain"
	"vintagevision/internal/requests"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CorrectionEvent is the JSON value of one published message.
type CorrectionEvent struct {
	RequestID      string        `json:"requestId"`
	AnalysisID     string        `json:"analysisId"`
	ExpertID       string        `json:"expertId"`
	ItemName       string        `json:"itemName"`
	ItemCategory   domain.Domain `json:"itemCategory"`
	Field          string        `json:"field"`
	OriginalValue  string        `json:"originalValue"`
	CorrectedValue string        `json:"correctedValue"`
	Explanation    string        `json:"explanation,omitempty"`
	Position       int           `json:"position"`
	CorrectedAt    time.Time     `json:"correctedAt"`
}

// Producer is a requests.CorrectionSink that writes one message per
// correction, keyed by request id so a request's corrections stay ordered
// within a partition.
type Producer struct {
	writer messageWriter
	now    func() time.Time
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		now: time.Now,
	}
}

func (p *Producer) RecordCorrections(ctx context.Context, batch requests.CorrectionBatch) error {
	if len(batch.Corrections) == 0 {
		return nil
	}
	at := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(batch.Corrections))
	for i, c := range batch.Corrections {
		data, err := json.Marshal(CorrectionEvent{
			RequestID:      batch.RequestID,
			AnalysisID:     batch.AnalysisID,
			ExpertID:       batch.ExpertID,
			ItemName:       batch.ItemName,
			ItemCategory:   batch.ItemCategory,
			Field:          c.Field,
			OriginalValue:  c.OriginalValue,
			CorrectedValue: c.CorrectedValue,
			Explanation:    c.Explanation,
			Position:       i,
			CorrectedAt:    at,
		})
		if err != nil {
			return fmt.Errorf("encode correction %d for %s: %w", i, batch.RequestID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(batch.RequestID), Value: data, Time: at})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish corrections for %s: %w", batch.RequestID, err)
	}
	log.Printf("kafka corrections published request=%s count=%d", batch.RequestID, len(msgs))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
