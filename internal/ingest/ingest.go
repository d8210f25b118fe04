// Package ingest delivers sensor events from a file or Kafka into the live
// pipeline. Wire-level validation happens here: an event that arrives
// without an id, metric type, or metric value never reaches the reducer.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/segmentio/kafka-go"

	"github.com/quenishay-arch/traceloom2/internal/model"
)

// Kind distinguishes first-seen events from updates to a previously seen id.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
)

// Delivery is one validated event plus its kind.
type Delivery struct {
	Event model.IoTEvent
	Kind  Kind
}

// ErrDrop marks a wire record that failed validation. Callers count these
// and move on.
var ErrDrop = errors.New("event dropped")

// Source yields validated events until the stream ends (io.EOF) or the
// context is canceled.
type Source interface {
	Next(ctx context.Context) (Delivery, error)
	Close() error
}

// envelope is the wire form. MetricValue is a pointer so a missing field is
// distinguishable from an explicit zero.
type envelope struct {
	ID          string   `json:"id"`
	POID        string   `json:"po_id"`
	MetricType  string   `json:"metric_type"`
	MetricValue *float64 `json:"metric_value"`
	MetricUnit  string   `json:"metric_unit"`
	Location    string   `json:"location"`
	Source      string   `json:"source"`
	Status      string   `json:"status"`
	Timestamp   int64    `json:"timestamp"`
	Kind        string   `json:"kind"`
}

// Decode parses and validates one wire record. Records missing id,
// metric_type, or metric_value return ErrDrop.
func Decode(b []byte) (Delivery, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", ErrDrop, err)
	}
	if env.ID == "" || env.MetricType == "" || env.MetricValue == nil {
		return Delivery{}, fmt.Errorf("%w: missing id, metric_type, or metric_value", ErrDrop)
	}
	k := KindCreate
	if env.Kind == string(KindUpdate) {
		k = KindUpdate
	}
	return Delivery{
		Event: model.IoTEvent{
			ID:          env.ID,
			POID:        env.POID,
			MetricType:  model.MetricType(env.MetricType),
			MetricValue: *env.MetricValue,
			MetricUnit:  env.MetricUnit,
			Location:    env.Location,
			Source:      model.Source(env.Source),
			Status:      model.EventStatus(env.Status),
			Timestamp:   env.Timestamp,
		},
		Kind: k,
	}, nil
}

// FileSource reads JSONL events, one record per line. Used for dev and
// replay.
type FileSource struct {
	f       *os.File
	scanner *bufio.Scanner
}

func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	return &FileSource{f: f, scanner: bufio.NewScanner(f)}, nil
}

func (s *FileSource) Next(ctx context.Context) (Delivery, error) {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return Decode(line)
	}
	if err := s.scanner.Err(); err != nil {
		return Delivery{}, fmt.Errorf("scan events: %w", err)
	}
	return Delivery{}, io.EOF
}

func (s *FileSource) Close() error { return s.f.Close() }

// KafkaSource consumes the canonical events topic through a consumer group.
type KafkaSource struct {
	reader kafkaMessageReader
}

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewKafkaSource(brokers []string, topic string, groupID string) *KafkaSource {
	return &KafkaSource{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})}
}

// NewKafkaSourceWith is only for tests to inject a fake reader.
func NewKafkaSourceWith(r kafkaMessageReader) *KafkaSource {
	return &KafkaSource{reader: r}
}

func (s *KafkaSource) Next(ctx context.Context) (Delivery, error) {
	m, err := s.reader.ReadMessage(ctx)
	if err != nil {
		return Delivery{}, err
	}
	return Decode(m.Value)
}

func (s *KafkaSource) Close() error { return s.reader.Close() }
