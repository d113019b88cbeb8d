package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trading-dashboard/internal/model"
)

// Delivery methods a rule can list in NotificationMethods.
const (
	MethodLog      = "log"
	MethodTelegram = "telegram"
	MethodWebhook  = "webhook"
	MethodBrowser  = "browser"
)

// DefaultSendTimeout bounds each individual delivery.
const DefaultSendTimeout = 10 * time.Second

// Result labels passed to the result hook.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Dispatcher routes a fired rule to the notifiers named by its
// NotificationMethods. Delivery is asynchronous and best-effort: errors are
// logged and reported through the result hook, never returned to the caller.
type Dispatcher struct {
	mu       sync.RWMutex
	routes   map[string]Notifier
	timeout  time.Duration
	log      *slog.Logger
	onResult func(method, result string)

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher with no routes.
func NewDispatcher(timeout time.Duration, log *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		routes:  make(map[string]Notifier),
		timeout: timeout,
		log:     log,
	}
}

// Register binds a method name to a notifier, replacing any previous one.
func (d *Dispatcher) Register(method string, n Notifier) {
	d.mu.Lock()
	d.routes[method] = n
	d.mu.Unlock()
}

// OnResult installs a hook called once per method per dispatch, typically
// to feed a metrics counter.
func (d *Dispatcher) OnResult(fn func(method, result string)) {
	d.mu.Lock()
	d.onResult = fn
	d.mu.Unlock()
}

// Methods returns the registered method names.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.routes))
	for m := range d.routes {
		out = append(out, m)
	}
	return out
}

// Dispatch sends the alert for a fired rule to each of its methods in the
// background.
func (d *Dispatcher) Dispatch(rule model.AlertRule, entry model.AlertHistoryEntry) {
	alert := FromTrigger(rule, entry)

	d.mu.RLock()
	hook := d.onResult
	targets := make(map[string]Notifier, len(rule.NotificationMethods))
	for _, m := range rule.NotificationMethods {
		n, ok := d.routes[m]
		if !ok {
			d.log.Debug("no notifier for method", "method", m, "alert_id", rule.ID)
			report(hook, m, ResultSkipped)
			continue
		}
		targets[m] = n
	}
	d.mu.RUnlock()

	for method, n := range targets {
		d.wg.Add(1)
		go func(method string, n Notifier) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()

			if err := send(ctx, n, alert); err != nil {
				d.log.Error("notification failed",
					"method", method,
					"alert_id", rule.ID,
					"symbol", entry.Symbol,
					"error", err,
				)
				report(hook, method, ResultError)
				return
			}
			report(hook, method, ResultOK)
		}(method, n)
	}
}

// Wait blocks until all in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// send calls n.Send, turning a panic into an error.
func send(ctx context.Context, n Notifier, a Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return n.Send(ctx, a)
}

func report(hook func(string, string), method, result string) {
	if hook != nil {
		hook(method, result)
	}
}
