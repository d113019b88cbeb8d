package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"trading-dashboard/internal/model"
)

func testRule(methods ...string) model.AlertRule {
	return model.AlertRule{
		ID:                  "rule-1",
		Symbol:              "BTCUSDT",
		Market:              model.MarketCrypto,
		Type:                model.AlertPrice,
		Condition:           model.CondAbove,
		Value:               100,
		NotificationMethods: methods,
	}
}

func testEntry() model.AlertHistoryEntry {
	return model.AlertHistoryEntry{
		ID:          "hist-1",
		AlertID:     "rule-1",
		Symbol:      "BTCUSDT",
		Market:      model.MarketCrypto,
		Message:     "BTCUSDT price 101 is above 100",
		TriggeredAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Price:       101,
	}
}

// ──────────────────────────────────────────────
// Notifiers
// ──────────────────────────────────────────────

func TestFromTrigger_Levels(t *testing.T) {
	a := FromTrigger(testRule(), testEntry())
	if a.Level != AlertWarning || a.Title != "BTCUSDT price alert" {
		t.Errorf("price alert = %+v", a)
	}

	r := testRule()
	r.Type = model.AlertPortfolio
	if a := FromTrigger(r, testEntry()); a.Level != AlertCritical {
		t.Errorf("portfolio alert level = %s, want CRITICAL", a.Level)
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), FromTrigger(testRule(), testEntry())); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.AlertID != "rule-1" || got.Price != 101 || got.Message != "BTCUSDT price 101 is above 100" {
		t.Errorf("payload = %+v", got)
	}
	if got.TriggeredAt != "2026-05-01T12:00:00Z" {
		t.Errorf("triggeredAt = %q", got.TriggeredAt)
	}
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), FromTrigger(testRule(), testEntry()))
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var path string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.apiBase = srv.URL
	if err := n.Send(context.Background(), FromTrigger(testRule(), testEntry())); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if body["chat_id"] != "42" || body["parse_mode"] != "MarkdownV2" {
		t.Errorf("body = %v", body)
	}
	if !strings.Contains(body["text"], `is above 100`) || !strings.Contains(body["text"], "Price: `") {
		t.Errorf("text = %q", body["text"])
	}
}

func TestTelegramNotifier_ErrorDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "missing")
	n.apiBase = srv.URL
	err := n.Send(context.Background(), FromTrigger(testRule(), testEntry()))
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err = %v, want the API description", err)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("1.5 (x)"); got != `1\.5 \(x\)` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

// ──────────────────────────────────────────────
// Dispatcher
// ──────────────────────────────────────────────

type resultLog struct {
	mu  sync.Mutex
	got map[string]string
}

func (r *resultLog) record(method, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.got == nil {
		r.got = make(map[string]string)
	}
	r.got[method] = result
}

func TestDispatcher_RoutesByMethod(t *testing.T) {
	d := NewDispatcher(time.Second, nil)
	results := &resultLog{}
	d.OnResult(results.record)

	var mu sync.Mutex
	var pushed []Alert
	d.Register(MethodBrowser, NotifierFunc(func(ctx context.Context, a Alert) error {
		mu.Lock()
		pushed = append(pushed, a)
		mu.Unlock()
		return nil
	}))
	d.Register(MethodWebhook, NotifierFunc(func(ctx context.Context, a Alert) error {
		return errors.New("connection refused")
	}))

	d.Dispatch(testRule(MethodBrowser, MethodWebhook, "sms"), testEntry())
	d.Wait()

	if len(pushed) != 1 || pushed[0].Entry.ID != "hist-1" {
		t.Fatalf("browser push = %+v", pushed)
	}
	want := map[string]string{
		MethodBrowser: ResultOK,
		MethodWebhook: ResultError,
		"sms":         ResultSkipped,
	}
	for m, r := range want {
		if results.got[m] != r {
			t.Errorf("result[%s] = %q, want %q", m, results.got[m], r)
		}
	}
}

func TestDispatcher_TimeoutBoundsSend(t *testing.T) {
	d := NewDispatcher(20*time.Millisecond, nil)
	results := &resultLog{}
	d.OnResult(results.record)
	d.Register(MethodLog, NotifierFunc(func(ctx context.Context, a Alert) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	d.Dispatch(testRule(MethodLog), testEntry())
	d.Wait()

	if time.Since(start) > time.Second {
		t.Fatal("send was not bounded by the dispatcher timeout")
	}
	if results.got[MethodLog] != ResultError {
		t.Errorf("result = %q, want error", results.got[MethodLog])
	}
}

func TestDispatcher_RecoversNotifierPanic(t *testing.T) {
	d := NewDispatcher(time.Second, nil)
	results := &resultLog{}
	d.OnResult(results.record)
	d.Register(MethodWebhook, NotifierFunc(func(ctx context.Context, a Alert) error {
		var m map[string]int
		m["boom"]++ // nil map write
		return nil
	}))
	d.Register(MethodLog, NewLogNotifier(nil))

	d.Dispatch(testRule(MethodWebhook, MethodLog), testEntry())
	d.Wait()

	if results.got[MethodWebhook] != ResultError {
		t.Errorf("panicking notifier result = %q, want error", results.got[MethodWebhook])
	}
	if results.got[MethodLog] != ResultOK {
		t.Errorf("log result = %q, want ok", results.got[MethodLog])
	}
}

func TestLogNotifier_NeverFails(t *testing.T) {
	if err := NewLogNotifier(nil).Send(context.Background(), FromTrigger(testRule(), testEntry())); err != nil {
		t.Fatalf("log notifier returned %v", err)
	}
}
