package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

const commsTestPrefix = "events:comms_publisher_integration_test"

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", commsTestPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", commsTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", commsTestPrefix, err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func subscribeEvents(t *testing.T, nc *comms.Conn, subject string) chan *FaultRaisedEvent {
	t.Helper()
	received := make(chan *FaultRaisedEvent, 1)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event FaultRaisedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Errorf("%s - failed to unmarshal: %v", commsTestPrefix, err)
			return
		}
		received <- &event
	})
	if err != nil {
		t.Fatalf("%s - failed to subscribe to %s: %v", commsTestPrefix, subject, err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })
	return received
}

func waitEvent(t *testing.T, ch chan *FaultRaisedEvent, name string) *FaultRaisedEvent {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for %s event", commsTestPrefix, name)
	}
	return nil
}

func TestCommsPublisher_PublishFault_BothSubjects(t *testing.T) {
	nc, cleanup := startTestServer(t, 14230)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	granular := subscribeEvents(t, nc, "faults.raised.NotFoundFault")
	global := subscribeEvents(t, nc, "faults.raised")

	event := &FaultRaisedEvent{
		CorrelationID: "7b0c7f4e-2f55-4a4f-9b43-0c1b8b5d2a10",
		FaultKind:     "NotFoundFault",
		Status:        404,
		Message:       "widget 7",
		Timestamp:     "2025-01-01T00:00:00Z",
	}
	if err := publisher.PublishFault(context.Background(), event); err != nil {
		t.Fatalf("%s - PublishFault failed: %v", commsTestPrefix, err)
	}
	nc.Flush()

	got := waitEvent(t, granular, "granular")
	if got.CorrelationID != event.CorrelationID || got.Status != 404 {
		t.Errorf("%s - granular event = %+v", commsTestPrefix, got)
	}
	got = waitEvent(t, global, "global")
	if got.FaultKind != "NotFoundFault" {
		t.Errorf("%s - global FaultKind = %q", commsTestPrefix, got.FaultKind)
	}
}

func TestCommsPublisher_CustomGlobalSubject(t *testing.T) {
	nc, cleanup := startTestServer(t, 14231)
	defer cleanup()

	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{GlobalSubject: "custom.faults"})
	global := subscribeEvents(t, nc, "custom.faults")

	if err := publisher.PublishFault(context.Background(), &FaultRaisedEvent{FaultKind: "TimeoutFault", Status: 504}); err != nil {
		t.Fatalf("%s - PublishFault failed: %v", commsTestPrefix, err)
	}
	nc.Flush()

	if got := waitEvent(t, global, "custom global"); got.Status != 504 {
		t.Errorf("%s - Status = %d, want 504", commsTestPrefix, got.Status)
	}
}

func TestCommsPublisher_ClosedConnection(t *testing.T) {
	nc, cleanup := startTestServer(t, 14232)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	nc.Close()
	if err := publisher.PublishFault(context.Background(), &FaultRaisedEvent{FaultKind: "IOFault"}); err == nil {
		t.Errorf("%s - expected error publishing on a closed connection", commsTestPrefix)
	}
}
