package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cinebot/internal/transport"
)

type fakeSender struct {
	mu       sync.Mutex
	sends    []int64
	inflight atomic.Int64
	maxSeen  atomic.Int64

	failWith map[int64]error
	delay    time.Duration
}

func (f *fakeSender) Send(_ context.Context, to transport.ChatTarget, _ transport.Payload, _ *transport.SendOptions) (transport.MessageRef, error) {
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.sends = append(f.sends, to.ChatID)
	f.mu.Unlock()
	if err, ok := f.failWith[to.ChatID]; ok {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

type fakeDirectory struct {
	mu      sync.Mutex
	removed []int64
}

func (f *fakeDirectory) Remove(_ context.Context, chatID int64) error {
	f.mu.Lock()
	f.removed = append(f.removed, chatID)
	f.mu.Unlock()
	return nil
}

func recipients(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

func textPayload() []transport.Payload {
	return []transport.Payload{{Text: "hello"}}
}

func newTestDispatcher(cfg Config, s transport.Sender, dir Directory) *Dispatcher {
	return New(cfg, s, dir, nil, zerolog.Nop())
}

func TestDispatchWaveCount(t *testing.T) {
	s := &fakeSender{delay: 5 * time.Millisecond}
	dir := &fakeDirectory{}
	d := newTestDispatcher(Config{WaveSize: 25, WaveDelay: 10 * time.Millisecond}, s, dir)

	rep := d.Dispatch(context.Background(), recipients(60), textPayload(), transport.SendOptions{})
	if rep.Delivered != 60 || rep.Failed != 0 || rep.Pruned != 0 {
		t.Fatalf("report %+v", rep)
	}
	if rep.Waves != 3 {
		t.Fatalf("waves %d, want 3", rep.Waves)
	}
	// 60 recipients at W=25: concurrency must never exceed the wave size.
	if max := s.maxSeen.Load(); max > 25 {
		t.Fatalf("observed %d concurrent sends, wave size is 25", max)
	}
}

func TestDispatchPartialFailureIsolation(t *testing.T) {
	s := &fakeSender{failWith: map[int64]error{
		13: errors.New("flood control"),
	}}
	dir := &fakeDirectory{}
	d := newTestDispatcher(Config{WaveSize: 25, WaveDelay: time.Millisecond}, s, dir)

	rep := d.Dispatch(context.Background(), recipients(60), textPayload(), transport.SendOptions{})
	if rep.Delivered != 59 {
		t.Fatalf("delivered %d, want 59", rep.Delivered)
	}
	if rep.Failed != 1 {
		t.Fatalf("failed %d, want 1", rep.Failed)
	}
	if rep.Pruned != 0 || len(dir.removed) != 0 {
		t.Fatalf("transient failure must not prune: %+v removed=%v", rep, dir.removed)
	}
}

func TestDispatchPrunesPermanentlyUnreachable(t *testing.T) {
	gone := fmt.Errorf("%w: blocked by user", transport.ErrRecipientGone)
	s := &fakeSender{failWith: map[int64]error{
		5:  gone,
		22: gone,
		40: errors.New("timeout"),
	}}
	dir := &fakeDirectory{}
	d := newTestDispatcher(Config{WaveSize: 25, WaveDelay: time.Millisecond}, s, dir)

	rep := d.Dispatch(context.Background(), recipients(60), textPayload(), transport.SendOptions{})
	if rep.Delivered != 57 || rep.Failed != 3 {
		t.Fatalf("report %+v", rep)
	}
	if rep.Pruned != 2 || len(dir.removed) != 2 {
		t.Fatalf("pruned %d removed=%v, want the two blocked recipients", rep.Pruned, dir.removed)
	}
}

func TestDispatchPrunesRecipientOncePerRun(t *testing.T) {
	gone := fmt.Errorf("%w: deactivated", transport.ErrRecipientGone)
	s := &fakeSender{failWith: map[int64]error{3: gone}}
	dir := &fakeDirectory{}
	d := newTestDispatcher(Config{WaveSize: 10, WaveDelay: time.Millisecond}, s, dir)

	// Two payloads both fail permanently for the same recipient.
	payloads := []transport.Payload{{Text: "a"}, {Text: "b"}}
	rep := d.Dispatch(context.Background(), recipients(5), payloads, transport.SendOptions{})
	if rep.Failed != 2 {
		t.Fatalf("failed %d, want 2 attempts", rep.Failed)
	}
	if len(dir.removed) != 1 {
		t.Fatalf("Remove called %d times, want 1", len(dir.removed))
	}
}

func TestDispatchAllPayloadsToAllRecipients(t *testing.T) {
	s := &fakeSender{}
	dir := &fakeDirectory{}
	d := newTestDispatcher(Config{WaveSize: 7, WaveDelay: time.Millisecond}, s, dir)

	payloads := []transport.Payload{{Text: "a"}, {MediaRef: "f1", Kind: transport.MediaPhoto}}
	rep := d.Dispatch(context.Background(), recipients(10), payloads, transport.SendOptions{})
	if rep.Delivered != 20 {
		t.Fatalf("delivered %d, want 10 recipients x 2 payloads", rep.Delivered)
	}
	if len(s.sends) != 20 {
		t.Fatalf("sender saw %d attempts, want 20", len(s.sends))
	}
}

func TestDispatchCancelBetweenWaves(t *testing.T) {
	s := &fakeSender{}
	dir := &fakeDirectory{}
	d := newTestDispatcher(Config{WaveSize: 10, WaveDelay: 200 * time.Millisecond}, s, dir)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond) // inside the first inter-wave pause
		cancel()
	}()
	rep := d.Dispatch(ctx, recipients(30), textPayload(), transport.SendOptions{})
	if rep.Delivered != 10 {
		t.Fatalf("delivered %d, want first wave only (10)", rep.Delivered)
	}
}

func TestDispatchProtectionPolicyApplied(t *testing.T) {
	var protectedSeen sync.Map
	s := senderFunc(func(_ context.Context, to transport.ChatTarget, _ transport.Payload, opt *transport.SendOptions) (transport.MessageRef, error) {
		protectedSeen.Store(to.ChatID, opt.Protected)
		return transport.MessageRef{}, nil
	})
	d := New(Config{WaveSize: 5, WaveDelay: time.Millisecond}, s, &fakeDirectory{}, policyFunc(func(id int64) bool { return id != 2 }), zerolog.Nop())

	d.Dispatch(context.Background(), []int64{1, 2, 3}, textPayload(), transport.SendOptions{})
	for _, id := range []int64{1, 3} {
		if v, _ := protectedSeen.Load(id); v != true {
			t.Fatalf("recipient %d should be protected", id)
		}
	}
	if v, _ := protectedSeen.Load(int64(2)); v != false {
		t.Fatal("recipient 2 has a lifted protection override")
	}
}

type senderFunc func(ctx context.Context, to transport.ChatTarget, p transport.Payload, opt *transport.SendOptions) (transport.MessageRef, error)

func (f senderFunc) Send(ctx context.Context, to transport.ChatTarget, p transport.Payload, opt *transport.SendOptions) (transport.MessageRef, error) {
	return f(ctx, to, p, opt)
}

type policyFunc func(int64) bool

func (f policyFunc) Protected(id int64) bool { return f(id) }
