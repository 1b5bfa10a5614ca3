//go:build integration

package mqtt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Integration tests for broker-backed behaviour.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...
//
// Note: Some tests may be flaky in CI due to timing dependencies.
// Consider running with: go test -tags=integration -count=1 -v ...

func TestIntegration_Connect(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "homelink-int-connect"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestIntegration_ConnectInvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if err == nil {
		t.Fatal("Connect() expected error for invalid broker")
	}

	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_Close(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "homelink-int-close"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}

func TestIntegration_HealthCheck(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "homelink-int-health"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}
}

func TestIntegration_HealthCheckDisconnected(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "homelink-int-health-disc"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "homelink-int-sub-track"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{
		"homelink/int/test/topic1",
		"homelink/int/test/topic2",
		"homelink/int/test/topic3",
	}

	handler := func(string, []byte) error { return nil }

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	for _, topic := range topics {
		if !client.HasSubscription(topic) {
			t.Errorf("HasSubscription(%s) = false, want true", topic)
		}
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	if client.HasSubscription(topics[0]) {
		t.Error("HasSubscription() = true after Unsubscribe(), want false")
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	pubCfg := testConfig()
	pubCfg.Broker.ClientID = "homelink-int-pub"

	pub, err := Connect(pubCfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	subCfg := testConfig()
	subCfg.Broker.ClientID = "homelink-int-sub"

	sub, err := Connect(subCfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	topic := "homelink/int/test/roundtrip"
	payload := `{"value":21.5,"sensor_id":"temp-1"}`
	received := make(chan string, 1)

	err = sub.Subscribe(topic, 1, func(_ string, p []byte) error {
		received <- string(p)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishString(topic, payload, 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}

	select {
	case got := <-received:
		if got != payload {
			t.Errorf("received %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Error("message not received within timeout")
	}
}

func TestIntegration_WildcardSubscription(t *testing.T) {
	pubCfg := testConfig()
	pubCfg.Broker.ClientID = "homelink-int-wild-pub"

	pub, err := Connect(pubCfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	subCfg := testConfig()
	subCfg.Broker.ClientID = "homelink-int-wild-sub"

	sub, err := Connect(subCfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	pattern := Topics{Site: "homelink-int"}.AllSensors()

	var mu sync.Mutex
	receivedTopics := make(map[string]bool)

	err = sub.Subscribe(pattern, 1, func(topic string, _ []byte) error {
		mu.Lock()
		receivedTopics[topic] = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	topics := []string{
		Topics{Site: "homelink-int"}.Sensor("temperature"),
		Topics{Site: "homelink-int"}.Sensor("humidity"),
		Topics{Site: "homelink-int"}.Sensor("pressure"),
	}

	for _, topic := range topics {
		if err := pub.PublishString(topic, `{"value":1}`, 1, false); err != nil {
			t.Fatalf("PublishString(%s) error = %v", topic, err)
		}
	}

	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, topic := range topics {
		if !receivedTopics[topic] {
			t.Errorf("wildcard subscription missed topic %s", topic)
		}
	}
}

func TestIntegration_OnConnectCallback(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "homelink-int-callback"

	var called atomic.Bool

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.SetOnConnect(func() {
		called.Store(true)
	})

	// The callback fires on reconnect, not initial connect, so registering
	// after Connect only verifies it does not fire spuriously.
	time.Sleep(200 * time.Millisecond)

	if called.Load() {
		t.Error("OnConnect callback fired without a reconnection")
	}
}

func TestIntegration_HandlerError(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "homelink-int-handler-err"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := "homelink/int/test/handler-error"
	handlerCalled := make(chan struct{}, 1)

	err = client.Subscribe(topic, 1, func(string, []byte) error {
		handlerCalled <- struct{}{}
		return errors.New("handler error")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := client.PublishString(topic, "test", 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}

	select {
	case <-handlerCalled:
	case <-time.After(2 * time.Second):
		t.Error("handler was not called")
	}
}
