package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/quenishay-arch/traceloom2/internal/model"
)

func main() {
	var count int
	var outputFile string
	var bootstrap string
	var topic string
	var subjects string
	flag.IntVar(&count, "count", 100, "number of sensor events to generate")
	flag.StringVar(&outputFile, "output", "events.jsonl", "output file (ignored with -kafka-bootstrap)")
	flag.StringVar(&bootstrap, "kafka-bootstrap", "", "produce to kafka instead of a file")
	flag.StringVar(&topic, "topic", "tracked.events", "kafka topic for -kafka-bootstrap")
	flag.StringVar(&subjects, "pos", "po-1,po-2,po-3", "comma-separated po ids; empty entries emit global events")
	flag.Parse()

	if err := generate(count, outputFile, bootstrap, topic, strings.Split(subjects, ",")); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

type metricSpec struct {
	typ  model.MetricType
	unit string
	min  float64
	max  float64
	warn float64 // above this the event is flagged warning, 20% beyond critical
}

var specs = []metricSpec{
	{model.MetricProductionRate, "units/hr", 40, 120, 100},
	{model.MetricTemperature, "°C", 18, 42, 35},
	{model.MetricHumidity, "%", 30, 90, 75},
	{model.MetricMachineStatus, "", 0, 1, 2},
	{model.MetricDefectDetection, "defects", 0, 8, 4},
}

func statusFor(spec metricSpec, v float64) model.EventStatus {
	switch {
	case v > spec.warn*1.2:
		return model.EventCritical
	case v > spec.warn:
		return model.EventWarning
	default:
		return model.EventNormal
	}
}

func generate(count int, outputFile string, bootstrap string, topic string, pos []string) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	baseTime := time.Now().UTC().Unix()

	var emit func(e model.IoTEvent) error
	if bootstrap != "" {
		w := &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(bootstrap, ",")...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
		defer w.Close()
		emit = func(e model.IoTEvent) error {
			b, err := json.Marshal(&e)
			if err != nil {
				return err
			}
			return w.WriteMessages(context.Background(), kafka.Message{Key: []byte(e.Subject()), Value: b})
		}
	} else {
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		defer file.Close()
		enc := json.NewEncoder(file)
		emit = func(e model.IoTEvent) error { return enc.Encode(&e) }
	}

	locations := []string{"Tiruppur Unit 2", "Ludhiana Mill", "Coimbatore Spinning", "Dhaka Line 4"}
	sources := []model.Source{model.SourceFactoryMachine, model.SourceWarehouseSensor, model.SourceQAScanner, model.SourceLogisticsTracker}
	for i := 0; i < count; i++ {
		spec := specs[rng.Intn(len(specs))]
		v := spec.min + rng.Float64()*(spec.max-spec.min)
		e := model.IoTEvent{
			ID:          uuid.NewString(),
			POID:        pos[rng.Intn(len(pos))],
			MetricType:  spec.typ,
			MetricValue: float64(int(v*10)) / 10,
			MetricUnit:  spec.unit,
			Location:    locations[rng.Intn(len(locations))],
			Source:      sources[rng.Intn(len(sources))],
			Status:      statusFor(spec, v),
			Timestamp:   baseTime + int64(i*10), // 10s intervals
		}
		if err := emit(e); err != nil {
			return fmt.Errorf("emit event %d: %w", i+1, err)
		}
	}

	if bootstrap != "" {
		log.Printf("produced %d events to %s", count, topic)
	} else {
		log.Printf("generated %d events to %s", count, outputFile)
	}
	return nil
}
