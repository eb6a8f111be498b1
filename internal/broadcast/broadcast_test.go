package broadcast

import (
	"testing"
	"time"
)

func snapAt(tick uint64) Snapshot {
	return Snapshot{Timestamp: time.Now(), Tick: tick}
}

func drain(sub *Subscriber) []Snapshot {
	var got []Snapshot
	for {
		select {
		case s, ok := <-sub.C():
			if !ok {
				return got
			}
			got = append(got, s)
		default:
			return got
		}
	}
}

func TestSlowConsumerDropsOldestKeepsNewest(t *testing.T) {
	h := NewHub(3)
	slow := h.Subscribe()
	fast1 := h.Subscribe()
	fast2 := h.Subscribe()

	const n = 10
	for i := uint64(1); i <= n; i++ {
		h.Publish(snapAt(i))
		// Fast consumers drain every tick; the slow one never does.
		if len(drain(fast1)) != 1 || len(drain(fast2)) != 1 {
			t.Fatalf("fast consumer missed a snapshot at tick %d", i)
		}
	}

	got := drain(slow)
	if len(got) != 3 {
		t.Fatalf("expected slow consumer to hold queue-size snapshots, got %d", len(got))
	}
	if got[len(got)-1].Tick != n {
		t.Fatalf("expected newest snapshot tick %d, got %d", n, got[len(got)-1].Tick)
	}
	if got[0].Tick != n-2 {
		t.Fatalf("expected oldest surviving snapshot tick %d, got %d", n-2, got[0].Tick)
	}
	if h.Dropped() == 0 {
		t.Fatalf("expected dropped snapshots to be counted")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	h := NewHub(1)
	_ = h.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := uint64(0); i < 1000; i++ {
			h.Publish(snapAt(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full subscriber queue")
	}
}

func TestCloseSignalsEndOfStream(t *testing.T) {
	h := NewHub(2)
	sub := h.Subscribe()
	h.Publish(snapAt(1))
	h.Close()

	if s, ok := <-sub.C(); !ok || s.Tick != 1 {
		t.Fatalf("expected buffered snapshot before close, got ok=%v", ok)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatalf("expected closed channel after hub close")
	}
	// Publishing after close is a no-op.
	if dropped := h.Publish(snapAt(2)); dropped != 0 {
		t.Fatalf("expected publish after close to be a no-op")
	}
	// Subscribing after close yields an already-closed channel.
	late := h.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Fatalf("expected end-of-stream for late subscriber")
	}
}

func TestUnsubscribeConcurrentWithPublish(t *testing.T) {
	h := NewHub(4)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				h.Publish(snapAt(0))
			}
		}
	}()
	for i := 0; i < 100; i++ {
		sub := h.Subscribe()
		h.Unsubscribe(sub.ID())
	}
	close(stop)
	if h.SubscriberCount() != 0 {
		t.Fatalf("expected no subscribers left, got %d", h.SubscriberCount())
	}
}

type countingPusher struct {
	ch    chan Snapshot
	limit int
	seen  int
}

func (p *countingPusher) Push(s Snapshot) bool {
	p.seen++
	if p.seen > p.limit {
		return false
	}
	p.ch <- s
	return true
}

func TestAttachPrunesDeadPusher(t *testing.T) {
	h := NewHub(4)
	p := &countingPusher{ch: make(chan Snapshot, 16), limit: 2}
	h.Attach(p)

	for i := uint64(1); i <= 5; i++ {
		h.Publish(snapAt(i))
	}

	deadline := time.After(2 * time.Second)
	for h.SubscriberCount() > 0 {
		select {
		case <-deadline:
			t.Fatalf("dead pusher was not pruned")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if len(p.ch) != 2 {
		t.Fatalf("expected 2 pushed snapshots before death, got %d", len(p.ch))
	}
}
