package events

import (
	"context"
	"testing"
)

const publisherTestPrefix = "events:publisher_test"

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	err := pub.PublishFault(context.Background(), &FaultRaisedEvent{
		CorrelationID: "abc",
		FaultKind:     "NotFoundFault",
		Status:        404,
	})
	if err != nil {
		t.Errorf("%s - expected no error, got %v", publisherTestPrefix, err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var captured *FaultRaisedEvent

	pub := NewCallbackPublisher(func(_ context.Context, event *FaultRaisedEvent) error {
		captured = event
		return nil
	})

	event := &FaultRaisedEvent{
		CorrelationID: "abc",
		FaultKind:     "NotFoundFault",
		ErrorKind:     "NotFoundError",
		Status:        404,
		Message:       "widget 7",
		Operation:     "widgets.get",
		Timestamp:     "2025-01-01T00:00:00Z",
	}

	if err := pub.PublishFault(context.Background(), event); err != nil {
		t.Errorf("%s - expected no error, got %v", publisherTestPrefix, err)
	}
	if captured == nil {
		t.Fatalf("%s - expected callback to be called", publisherTestPrefix)
	}
	if captured.FaultKind != "NotFoundFault" || captured.Status != 404 {
		t.Errorf("%s - captured = %+v", publisherTestPrefix, captured)
	}
}
