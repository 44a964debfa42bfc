package controlplane

import (
	"testing"
	"time"

	"github.com/rik-org/riklet/internal/model"
)

func TestStatusBrokerPublishDeliversToSubscriber(t *testing.T) {
	b := NewStatusBroker()
	ch, unsub := b.Subscribe("fn-a")
	defer unsub()

	ev := model.StatusEvent{InstanceID: "i1", Status: model.StatusPending, At: time.Now()}
	b.Publish("fn-a", ev)

	select {
	case got := <-ch:
		if got.Status != model.StatusPending {
			t.Errorf("status = %q, want %q", got.Status, model.StatusPending)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestStatusBrokerClosesOnTerminalStatus(t *testing.T) {
	b := NewStatusBroker()
	ch, unsub := b.Subscribe("fn-a")
	defer unsub()

	b.Publish("fn-a", model.StatusEvent{Status: model.StatusRunning})
	<-ch

	b.Publish("fn-a", model.StatusEvent{Status: model.StatusTerminated})
	<-ch // final event

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after terminal status")
	}
}

func TestStatusBrokerLateSubscriberToClosedTopicGetsClosedChannel(t *testing.T) {
	b := NewStatusBroker()
	b.Publish("fn-a", model.StatusEvent{Status: model.StatusFailed})

	ch, unsub := b.Subscribe("fn-a")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel for late subscriber")
	}
}
