package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinayprograms/simbus/future"
)

// --- Test messages ---

type ping struct {
	Expects[string]
	n int
}

func (*ping) Topic() string { return "ping" }

type valueReq struct {
	Expects[int]
}

func (valueReq) Topic() string { return "value" }

type emptyReq struct {
	Expects[int]
}

func (*emptyReq) Topic() string { return "empty" }

type tick struct {
	Broadcast
	n int
}

func (tick) Topic() string { return "tick" }

func await(t *testing.T, b *Bus, id EndpointID) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := b.AwaitMessage(ctx, id)
	if err != nil {
		t.Fatalf("AwaitMessage(%s) error: %v", id, err)
	}
	return msg
}

func newTestBus(t *testing.T, ids ...EndpointID) *Bus {
	t.Helper()
	b := New(DefaultConfig())
	t.Cleanup(func() { b.Close() })
	for _, id := range ids {
		if err := b.Register(id); err != nil {
			t.Fatalf("Register(%s) error: %v", id, err)
		}
	}
	return b
}

// --- Unit Tests ---

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{"ping", false},
		{"sim.tick", false},
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateTopic(tt.topic)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTopic(%q) = %v, wantErr %v", tt.topic, err, tt.wantErr)
		}
	}
}

func TestBus_RegisterIdempotent(t *testing.T) {
	b := newTestBus(t, "a")

	if err := b.SubscribeRequest("ping", "a"); err != nil {
		t.Fatalf("SubscribeRequest error: %v", err)
	}
	f, err := SendRequest[string](b, &ping{n: 1})
	if err != nil || f == nil {
		t.Fatalf("SendRequest = (%v, %v)", f, err)
	}

	// A second Register must not replace the mailbox.
	if err := b.Register("a"); err != nil {
		t.Fatalf("second Register error: %v", err)
	}
	if got := b.MailboxLen("a"); got != 1 {
		t.Errorf("MailboxLen = %d, want 1", got)
	}
}

func TestBus_RegisterInvalid(t *testing.T) {
	b := newTestBus(t)
	if err := b.Register(""); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("Register(\"\") = %v, want ErrInvalidEndpoint", err)
	}
}

func TestBus_SubscribeUnregistered(t *testing.T) {
	b := newTestBus(t)

	if err := b.SubscribeRequest("ping", "ghost"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("SubscribeRequest = %v, want ErrNotRegistered", err)
	}
	if err := b.SubscribeNotification("tick", "ghost"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("SubscribeNotification = %v, want ErrNotRegistered", err)
	}
}

func TestBus_SubscribeTwiceIsNoop(t *testing.T) {
	b := newTestBus(t, "a")

	for i := 0; i < 3; i++ {
		if err := b.SubscribeRequest("ping", "a"); err != nil {
			t.Fatalf("SubscribeRequest error: %v", err)
		}
		if err := b.SubscribeNotification("tick", "a"); err != nil {
			t.Fatalf("SubscribeNotification error: %v", err)
		}
	}

	if got := b.Subscribers("ping"); len(got) != 1 {
		t.Errorf("Subscribers = %v, want one entry", got)
	}
	if n, _ := b.SendNotification(tick{n: 1}); n != 1 {
		t.Errorf("notification delivered %d times, want 1", n)
	}
}

func TestBus_NoSubscribersReturnsNil(t *testing.T) {
	b := newTestBus(t, "a")

	f, err := SendRequest[string](b, &ping{})
	if !errors.Is(err, ErrNoSubscribers) {
		t.Errorf("err = %v, want ErrNoSubscribers", err)
	}
	if f != nil {
		t.Error("expected nil future")
	}
	if b.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", b.Pending())
	}

	// A topic whose only subscriber left behaves the same.
	b.SubscribeRequest("ping", "a")
	b.Unregister("a")
	if _, err := SendRequest[string](b, &ping{}); !errors.Is(err, ErrNoSubscribers) {
		t.Errorf("after unregister err = %v, want ErrNoSubscribers", err)
	}
	if got := b.Stats().RequestsUnrouted; got != 2 {
		t.Errorf("RequestsUnrouted = %d, want 2", got)
	}
}

func TestBus_InvalidRequest(t *testing.T) {
	b := newTestBus(t, "a")
	b.SubscribeRequest("value", "a")

	if _, err := SendRequest[int](b, valueReq{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("value request err = %v, want ErrInvalidRequest", err)
	}
	var nilReq *ping
	if _, err := SendRequest[string](b, nilReq); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("nil pointer err = %v, want ErrInvalidRequest", err)
	}
	if Complete[int](b, valueReq{}, 1) {
		t.Error("Complete with value request should be a no-op")
	}
}

func TestBus_RoundRobin(t *testing.T) {
	b := newTestBus(t, "A", "B", "C")
	for _, id := range []EndpointID{"A", "B", "C"} {
		b.SubscribeRequest("ping", id)
	}

	want := []EndpointID{"A", "B", "C", "A"}
	for i, id := range want {
		req := &ping{n: i}
		if _, err := SendRequest[string](b, req); err != nil {
			t.Fatalf("SendRequest %d error: %v", i, err)
		}
		got := await(t, b, id)
		if got != Message(req) {
			t.Errorf("request %d delivered to wrong endpoint, want %s", i, id)
		}
		for _, other := range []EndpointID{"A", "B", "C"} {
			if n := b.MailboxLen(other); n != 0 {
				t.Errorf("after request %d, %s has %d queued", i, other, n)
			}
		}
	}
}

func TestBus_RoundRobinLateSubscriber(t *testing.T) {
	b := newTestBus(t, "A", "B", "C")
	b.SubscribeRequest("ping", "A")
	b.SubscribeRequest("ping", "B")

	SendRequest[string](b, &ping{}) // A
	b.SubscribeRequest("ping", "C")

	// C joins at the end of the list, after B.
	order := []EndpointID{"B", "C", "A"}
	for _, id := range order {
		SendRequest[string](b, &ping{})
		if b.MailboxLen(id) == 0 {
			t.Fatalf("expected %s to receive next request", id)
		}
		await(t, b, id)
	}
}

func TestBus_UnregisterKeepsRotationOrder(t *testing.T) {
	b := newTestBus(t, "A", "B", "C")
	for _, id := range []EndpointID{"A", "B", "C"} {
		b.SubscribeRequest("ping", id)
	}

	SendRequest[string](b, &ping{}) // A, cursor at B
	b.Unregister("B")

	if got := b.Subscribers("ping"); fmt.Sprint(got) != "[A C]" {
		t.Fatalf("Subscribers = %v, want [A C]", got)
	}

	SendRequest[string](b, &ping{})
	if b.MailboxLen("C") != 1 {
		t.Error("expected C to be next after B left")
	}
	SendRequest[string](b, &ping{})
	if b.MailboxLen("A") != 2 {
		t.Errorf("expected rotation to wrap to A, A has %d", b.MailboxLen("A"))
	}
}

func TestBus_StaleSubscriberSkipped(t *testing.T) {
	b := newTestBus(t, "A", "B")
	b.SubscribeRequest("ping", "A")
	b.SubscribeRequest("ping", "B")

	// Close A's mailbox without sweeping, as a concurrent Unregister would
	// between its close and its sweep.
	b.mailbox("A").close()

	for i := 0; i < 3; i++ {
		if _, err := SendRequest[string](b, &ping{n: i}); err != nil {
			t.Fatalf("SendRequest error: %v", err)
		}
	}
	if got := b.MailboxLen("B"); got != 3 {
		t.Errorf("B queued %d, want 3", got)
	}

	b.mailbox("B").close()
	if _, err := SendRequest[string](b, &ping{}); !errors.Is(err, ErrNoSubscribers) {
		t.Errorf("all-stale err = %v, want ErrNoSubscribers", err)
	}
	if b.Pending() != 3 {
		t.Errorf("Pending = %d, want 3", b.Pending())
	}
}

func TestBus_ReregisterDoesNotInheritSubscriptions(t *testing.T) {
	b := newTestBus(t, "A")
	b.SubscribeRequest("ping", "A")
	b.SubscribeNotification("tick", "A")

	b.Unregister("A")
	b.Register("A")

	if got := b.Subscribers("ping"); len(got) != 0 {
		t.Errorf("Subscribers = %v, want none", got)
	}
	if n, _ := b.SendNotification(tick{}); n != 0 {
		t.Errorf("notification delivered to %d, want 0", n)
	}
}

func TestBus_UnsubscribeRequest(t *testing.T) {
	b := newTestBus(t, "A", "B")
	b.SubscribeRequest("ping", "A")
	b.SubscribeRequest("ping", "B")

	if !b.UnsubscribeRequest("ping", "A") {
		t.Fatal("UnsubscribeRequest should report true")
	}
	if b.UnsubscribeRequest("ping", "A") {
		t.Error("second UnsubscribeRequest should report false")
	}
	SendRequest[string](b, &ping{})
	SendRequest[string](b, &ping{})
	if b.MailboxLen("B") != 2 {
		t.Errorf("B queued %d, want 2", b.MailboxLen("B"))
	}
}

func TestBus_BroadcastFanOut(t *testing.T) {
	b := newTestBus(t, "A", "B", "C", "D")
	for _, id := range []EndpointID{"A", "B", "C"} {
		b.SubscribeNotification("tick", id)
	}

	n, err := b.SendNotification(tick{n: 7})
	if err != nil {
		t.Fatalf("SendNotification error: %v", err)
	}
	if n != 3 {
		t.Errorf("delivered = %d, want 3", n)
	}

	for _, id := range []EndpointID{"A", "B", "C"} {
		if got := b.MailboxLen(id); got != 1 {
			t.Errorf("%s has %d copies, want 1", id, got)
		}
		msg := await(t, b, id).(tick)
		if msg.n != 7 {
			t.Errorf("%s got tick %d, want 7", id, msg.n)
		}
	}
	if got := b.MailboxLen("D"); got != 0 {
		t.Errorf("D has %d messages, want 0", got)
	}
}

func TestBus_BroadcastNoListeners(t *testing.T) {
	b := newTestBus(t)
	n, err := b.SendNotification(tick{})
	if err != nil || n != 0 {
		t.Errorf("SendNotification = (%d, %v), want (0, nil)", n, err)
	}
}

func TestBus_CompleteResolvesFuture(t *testing.T) {
	b := newTestBus(t, "A")
	b.SubscribeRequest("ping", "A")

	req := &ping{n: 1}
	f, err := SendRequest[string](b, req)
	if err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}

	got := await(t, b, "A").(*ping)
	if !Complete(b, Request[string](got), "pong") {
		t.Fatal("Complete should report true")
	}

	v, ok := f.GetTimeout(time.Second)
	if !ok || v != "pong" {
		t.Errorf("future = (%q, %v), want (pong, true)", v, ok)
	}

	// Second completion and unknown requests are silent no-ops.
	if Complete[string](b, req, "again") {
		t.Error("second Complete should report false")
	}
	if Complete[string](b, &ping{}, "unknown") {
		t.Error("Complete of unknown request should report false")
	}
	if f.Get() != "pong" {
		t.Errorf("value overwritten: %q", f.Get())
	}
	if b.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", b.Pending())
	}

	stats := b.Stats()
	if stats.Completions != 1 || stats.StaleCompletions != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBus_IdentityCorrelation(t *testing.T) {
	b := newTestBus(t, "A")
	b.SubscribeRequest("ping", "A")

	r1 := &ping{n: 1}
	r2 := &ping{n: 1}
	f1, _ := SendRequest[string](b, r1)
	f2, _ := SendRequest[string](b, r2)

	Complete[string](b, r2, "second")

	if f1.IsDone() {
		t.Error("completing an equal-valued request must not resolve the other")
	}
	if v, _ := f2.GetTimeout(0); v != "second" {
		t.Errorf("f2 = %q, want second", v)
	}
}

func TestBus_ZeroSizeRequestRejected(t *testing.T) {
	b := newTestBus(t, "A")
	b.SubscribeRequest("empty", "A")

	r1, r2 := &emptyReq{}, &emptyReq{}
	for _, req := range []*emptyReq{r1, r2} {
		f, err := SendRequest[int](b, req)
		if !errors.Is(err, ErrZeroSizeRequest) || !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("SendRequest() err = %v, want ErrZeroSizeRequest", err)
		}
		if f != nil {
			t.Error("rejected request must not create a future")
		}
	}
	if Complete[int](b, r1, 1) {
		t.Error("Complete on a zero-size request should report false")
	}
	if b.MailboxLen("A") != 0 || b.Pending() != 0 {
		t.Errorf("MailboxLen = %d, Pending = %d, want nothing queued", b.MailboxLen("A"), b.Pending())
	}
}

func TestBus_CompleteKeepsMismatchedFuture(t *testing.T) {
	b := newTestBus(t)
	req := &ping{n: 1}
	wrong := future.New[int]()
	if !b.pending.insert(req, wrong) {
		t.Fatal("insert failed")
	}

	if Complete[string](b, req, "pong") {
		t.Fatal("Complete should refuse a future of another type")
	}
	if b.Pending() != 1 {
		t.Errorf("Pending() = %d, want entry kept", b.Pending())
	}
	if got := b.Stats().StaleCompletions; got != 0 {
		t.Errorf("StaleCompletions = %d, want 0", got)
	}
	if wrong.IsDone() {
		t.Error("mismatched future must not be resolved")
	}
}

func TestBus_RequestInFlight(t *testing.T) {
	b := newTestBus(t, "A")
	b.SubscribeRequest("ping", "A")

	req := &ping{}
	if _, err := SendRequest[string](b, req); err != nil {
		t.Fatalf("first send error: %v", err)
	}
	if _, err := SendRequest[string](b, req); !errors.Is(err, ErrRequestInFlight) {
		t.Errorf("second send err = %v, want ErrRequestInFlight", err)
	}
	if b.MailboxLen("A") != 1 {
		t.Errorf("MailboxLen = %d, want 1", b.MailboxLen("A"))
	}

	Complete[string](b, req, "done")
	if _, err := SendRequest[string](b, req); err != nil {
		t.Errorf("resend after completion error: %v", err)
	}
}

func TestBus_UnregisterLeavesFuturesPending(t *testing.T) {
	b := newTestBus(t, "A")
	b.SubscribeRequest("ping", "A")

	f, _ := SendRequest[string](b, &ping{})
	b.Unregister("A")

	if f.IsDone() {
		t.Error("unregister must not resolve outstanding futures")
	}
	if b.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", b.Pending())
	}
	if b.MailboxLen("A") != 0 {
		t.Error("mailbox content should be discarded")
	}
}

func TestBus_UnregisterUnblocksWaiter(t *testing.T) {
	b := newTestBus(t, "A")

	errCh := make(chan error, 1)
	go func() {
		_, err := b.AwaitMessage(context.Background(), "A")
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if !b.Unregister("A") {
		t.Fatal("Unregister should report true")
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrNotRegistered) {
			t.Errorf("AwaitMessage err = %v, want ErrNotRegistered", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitMessage still blocked after Unregister")
	}

	if b.Unregister("A") {
		t.Error("second Unregister should report false")
	}
}

func TestBus_AwaitMessageUnregistered(t *testing.T) {
	b := newTestBus(t)
	if _, err := b.AwaitMessage(context.Background(), "nobody"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("err = %v, want ErrNotRegistered", err)
	}
}

func TestBus_AwaitMessageContext(t *testing.T) {
	b := newTestBus(t, "A")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := b.AwaitMessage(ctx, "A"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if !b.IsRegistered("A") {
		t.Error("a cancelled wait must not unregister the endpoint")
	}
}

func TestBus_AwaitMessageWakesOnSend(t *testing.T) {
	b := newTestBus(t, "A")
	b.SubscribeNotification("tick", "A")

	got := make(chan Message, 1)
	go func() {
		msg, err := b.AwaitMessage(context.Background(), "A")
		if err == nil {
			got <- msg
		}
	}()

	time.Sleep(20 * time.Millisecond)
	b.SendNotification(tick{n: 3})

	select {
	case msg := <-got:
		if msg.(tick).n != 3 {
			t.Errorf("got tick %d, want 3", msg.(tick).n)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitMessage did not wake on enqueue")
	}
}

func TestBus_FIFOPerMailbox(t *testing.T) {
	b := newTestBus(t, "A")
	b.SubscribeNotification("tick", "A")

	for i := 1; i <= 3; i++ {
		b.SendNotification(tick{n: i})
	}
	for i := 1; i <= 3; i++ {
		if got := await(t, b, "A").(tick).n; got != i {
			t.Errorf("message %d = tick %d", i, got)
		}
	}
}

func TestBus_FIFOAcrossSenders(t *testing.T) {
	b := newTestBus(t, "A")
	b.SubscribeNotification("tick", "A")

	const senders = 4
	const perSender = 200
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				b.SendNotification(tick{n: s*perSender + i})
			}
		}(s)
	}
	wg.Wait()

	last := make([]int, senders)
	for i := range last {
		last[i] = -1
	}
	for i := 0; i < senders*perSender; i++ {
		n := await(t, b, "A").(tick).n
		s, seq := n/perSender, n%perSender
		if seq <= last[s] {
			t.Fatalf("sender %d out of order: %d after %d", s, seq, last[s])
		}
		last[s] = seq
	}
}

func TestBus_Close(t *testing.T) {
	b := New(DefaultConfig())
	b.Register("A")
	b.SubscribeRequest("ping", "A")

	if err := b.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}

	if err := b.Register("B"); !errors.Is(err, ErrClosed) {
		t.Errorf("Register err = %v, want ErrClosed", err)
	}
	if _, err := SendRequest[string](b, &ping{}); !errors.Is(err, ErrClosed) {
		t.Errorf("SendRequest err = %v, want ErrClosed", err)
	}
	if _, err := b.SendNotification(tick{}); !errors.Is(err, ErrClosed) {
		t.Errorf("SendNotification err = %v, want ErrClosed", err)
	}
	if b.IsRegistered("A") {
		t.Error("Close should unregister every endpoint")
	}
}

// --- Concurrency Tests ---

func TestBus_ExactlyOnceDelivery(t *testing.T) {
	const workers = 4
	const senders = 8
	const perSender = 250

	b := newTestBus(t)
	for i := 0; i < workers; i++ {
		id := EndpointID(fmt.Sprintf("w%d", i))
		b.Register(id)
		b.SubscribeRequest("ping", id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled [workers]atomic.Int64
	var workerWG sync.WaitGroup
	for i := 0; i < workers; i++ {
		workerWG.Add(1)
		go func(i int) {
			defer workerWG.Done()
			id := EndpointID(fmt.Sprintf("w%d", i))
			for {
				msg, err := b.AwaitMessage(ctx, id)
				if err != nil {
					return
				}
				req := msg.(*ping)
				if !Complete[string](b, req, fmt.Sprintf("%s:%d", id, req.n)) {
					t.Errorf("request %d completed twice", req.n)
				}
				handled[i].Add(1)
			}
		}(i)
	}

	var sendWG sync.WaitGroup
	results := make(chan string, senders*perSender)
	for s := 0; s < senders; s++ {
		sendWG.Add(1)
		go func(s int) {
			defer sendWG.Done()
			for i := 0; i < perSender; i++ {
				f, err := SendRequest[string](b, &ping{n: s*perSender + i})
				if err != nil {
					t.Errorf("SendRequest error: %v", err)
					return
				}
				v, ok := f.GetTimeout(5 * time.Second)
				if !ok {
					t.Errorf("request %d never resolved", s*perSender+i)
					return
				}
				results <- v
			}
		}(s)
	}
	sendWG.Wait()
	close(results)
	cancel()
	workerWG.Wait()

	seen := make(map[string]bool)
	for v := range results {
		if seen[v] {
			t.Errorf("duplicate response %s", v)
		}
		seen[v] = true
	}

	var total int64
	for i := range handled {
		total += handled[i].Load()
		// Round-robin over a stable list spreads load evenly.
		if got := handled[i].Load(); got != senders*perSender/workers {
			t.Errorf("worker %d handled %d, want %d", i, got, senders*perSender/workers)
		}
	}
	if total != senders*perSender {
		t.Errorf("handled %d, want %d", total, senders*perSender)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", b.Pending())
	}
}

func TestBus_ConcurrentUnregisterNeverMisroutes(t *testing.T) {
	b := newTestBus(t)
	const endpoints = 8
	for i := 0; i < endpoints; i++ {
		id := EndpointID(fmt.Sprintf("e%d", i))
		b.Register(id)
		b.SubscribeRequest("ping", id)
		b.SubscribeNotification("tick", id)
	}

	var wg sync.WaitGroup
	var routed atomic.Int64
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if _, err := SendRequest[string](b, &ping{n: i}); err == nil {
					routed.Add(1)
				} else if !errors.Is(err, ErrNoSubscribers) {
					t.Errorf("unexpected error: %v", err)
				}
				b.SendNotification(tick{n: i})
			}
		}()
	}
	for i := 0; i < endpoints; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * time.Millisecond)
			b.Unregister(EndpointID(fmt.Sprintf("e%d", i)))
		}(i)
	}
	wg.Wait()

	if got := b.Subscribers("ping"); len(got) != 0 {
		t.Errorf("Subscribers = %v, want none", got)
	}
	if got := b.Listeners("tick"); len(got) != 0 {
		t.Errorf("Listeners = %v, want none", got)
	}
	if got := int64(b.Stats().RequestsRouted); got != routed.Load() {
		t.Errorf("RequestsRouted = %d, senders saw %d", got, routed.Load())
	}
}

func TestBus_ConcurrentSubscribeAndUnregister(t *testing.T) {
	b := newTestBus(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := EndpointID(fmt.Sprintf("e%d", i))
		b.Register(id)
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.SubscribeRequest("ping", id)
			b.SubscribeNotification("tick", id)
		}()
		go func() {
			defer wg.Done()
			b.Unregister(id)
		}()
	}
	wg.Wait()

	if got := b.Subscribers("ping"); len(got) != 0 {
		t.Errorf("Subscribers = %v, want none", got)
	}
	if got := b.Listeners("tick"); len(got) != 0 {
		t.Errorf("Listeners = %v, want none", got)
	}
}

func TestMailbox_CompactionKeepsOrder(t *testing.T) {
	mb := newMailbox(4)
	next := 0
	want := 0
	for round := 0; round < 10; round++ {
		for i := 0; i < 100; i++ {
			mb.put(tick{n: next})
			next++
		}
		for i := 0; i < 70; i++ {
			msg, ok, _ := mb.take()
			if !ok {
				t.Fatalf("round %d: mailbox empty early", round)
			}
			if msg.(tick).n != want {
				t.Fatalf("got %d, want %d", msg.(tick).n, want)
			}
			want++
		}
	}
	if mb.len() != next-want {
		t.Errorf("len = %d, want %d", mb.len(), next-want)
	}
	if dropped := mb.close(); dropped != next-want {
		t.Errorf("dropped = %d, want %d", dropped, next-want)
	}
	if mb.put(tick{}) {
		t.Error("closed mailbox should refuse messages")
	}
}
