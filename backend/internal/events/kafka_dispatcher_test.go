package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestKafkaDispatcher_DeliversEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	done := make(chan EntryChangeEvent, 1)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var evt EntryChangeEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return err
		}
		done <- evt
		return nil
	})

	d := NewKafkaDispatcher(producer, "entry-change-events", NewSemaphoreControl(), KafkaDispatcherOptions{
		QueueSize:   8,
		Workers:     1,
		MaxRetry:    1,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
	})

	evt := EntryChangeEvent{
		EventType: EventChangesRelayed,
		DocID:     "doc-1",
		AuthorID:  "u-1",
		Delta:     json.RawMessage(`{"ops":[{"insert":"x"}]}`),
		RelayedAt: time.Now(),
	}
	if err := d.Enqueue(context.Background(), evt); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	select {
	case got := <-done:
		if got.DocID != "doc-1" || got.EventType != EventChangesRelayed {
			t.Fatalf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestKafkaDispatcher_RetriesThenSucceeds(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrBrokerNotAvailable)
	done := make(chan struct{}, 1)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		done <- struct{}{}
		return nil
	})

	d := NewKafkaDispatcher(producer, "entry-change-events", nil, KafkaDispatcherOptions{
		QueueSize:   8,
		Workers:     1,
		MaxRetry:    3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
	})

	if err := d.Enqueue(context.Background(), EntryChangeEvent{DocID: "doc-1"}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event not retried to success")
	}
}

func TestKafkaDispatcher_EnqueueTimesOutWhenFull(t *testing.T) {
	// Workers=0：没人消费，队列灌满后 Enqueue 必须依赖 ctx 超时退出
	d := NewKafkaDispatcher(nil, "", nil, KafkaDispatcherOptions{
		QueueSize: 1,
		Workers:   0,
	})

	if err := d.Enqueue(context.Background(), EntryChangeEvent{DocID: "a"}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Enqueue(ctx, EntryChangeEvent{DocID: "b"}); err == nil {
		t.Fatal("Enqueue expected timeout error")
	}
}
