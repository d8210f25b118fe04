package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/quenishay-arch/traceloom2/internal/ingest"
)

func main() {
	var (
		bootstrap string
		groupID   string
		topicIn   string
		topicOut  string
		txID      string
	)
	flag.StringVar(&bootstrap, "bootstrap", "localhost:19092", "kafka bootstrap servers")
	flag.StringVar(&groupID, "group-id", "sensornorm", "consumer group id")
	flag.StringVar(&topicIn, "topic-in", "tracked.raw", "raw device readings topic")
	flag.StringVar(&topicOut, "topic-out", "tracked.events", "canonical events topic")
	flag.StringVar(&txID, "tx-id", "sensornorm-local-1", "transactional id")
	flag.Parse()

	runNormalizer(bootstrap, groupID, topicIn, topicOut, txID)
}

// runNormalizer consumes raw readings and produces canonical events under a
// transaction, binding consumer offsets so each reading is normalized
// exactly once.
func runNormalizer(bootstrap, groupID, topicIn, topicOut, txID string) {
	p, err := ck.NewProducer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"enable.idempotence": true,
		"acks":               "all",
		"transactional.id":   txID,
	})
	if err != nil {
		log.Fatalf("producer: %v", err)
	}
	defer p.Close()

	c, err := ck.NewConsumer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"group.id":           groupID,
		"enable.auto.commit": false,
		"isolation.level":    "read_committed",
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		log.Fatalf("consumer: %v", err)
	}
	defer c.Close()

	if err := c.SubscribeTopics([]string{topicIn}, nil); err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	if err := p.InitTransactions(context.TODO()); err != nil {
		log.Fatalf("init tx: %v", err)
	}
	log.Printf("sensornorm started bootstrap=%s in=%s out=%s", bootstrap, topicIn, topicOut)

	for {
		if err := p.BeginTransaction(); err != nil {
			log.Fatalf("begin tx: %v", err)
		}

		msg, err := c.ReadMessage(10 * time.Second)
		if err != nil {
			_ = p.AbortTransaction(context.TODO())
			continue
		}

		raw, err := ingest.DecodeRaw(msg.Value)
		if err != nil {
			_ = p.AbortTransaction(context.TODO())
			continue
		}
		e, err := ingest.Normalize(raw, uuid.NewString(), ingest.DefaultThresholds)
		if err != nil {
			if errors.Is(err, ingest.ErrDrop) {
				// Invalid reading: commit nothing for it, move the offset on.
				_ = p.AbortTransaction(context.TODO())
				_, _ = c.CommitMessage(msg)
				continue
			}
			_ = p.AbortTransaction(context.TODO())
			continue
		}
		val, _ := json.Marshal(&e)

		if err := p.Produce(&ck.Message{TopicPartition: ck.TopicPartition{Topic: &topicOut, Partition: ck.PartitionAny}, Key: []byte(e.Subject()), Value: val}, nil); err != nil {
			_ = p.AbortTransaction(context.TODO())
			continue
		}

		// get current offsets synchronously (not committed to the broker);
		// SendOffsetsToTransaction binds them to the transaction instead.
		offsets, _ := c.Commit()
		meta, _ := c.GetConsumerGroupMetadata()
		if err := p.SendOffsetsToTransaction(context.Background(), offsets, meta); err != nil {
			_ = p.AbortTransaction(context.TODO())
			continue
		}

		_ = p.Flush(5000)
		if err := p.CommitTransaction(context.TODO()); err != nil {
			_ = p.AbortTransaction(context.TODO())
			continue
		}
	}
}
