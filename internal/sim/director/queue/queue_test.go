package queue

import (
	"encoding/json"
	"testing"
)

func TestPopReady_Order(t *testing.T) {
	q := New(8)
	q.Push(Event{Key: 5, ScheduledTick: 3, Priority: 1})
	q.Push(Event{Key: 2, ScheduledTick: 1, Priority: 1})
	q.Push(Event{Key: 9, ScheduledTick: 2, Priority: 4})
	q.Push(Event{Key: 1, ScheduledTick: 10, Priority: 9})
	q.Push(Event{Key: 7, ScheduledTick: 0, Priority: 9, Forced: true})

	got := q.PopReady(5)
	if len(got) != 3 || got[0].Key != 9 || got[1].Key != 2 || got[2].Key != 5 {
		t.Fatalf("ready=%+v want keys [9 2 5]", got)
	}
	if q.Len() != 2 {
		t.Fatalf("len=%d want 2 (future + forced)", q.Len())
	}
	forced := q.PopForcedReady(5)
	if len(forced) != 1 || forced[0].Key != 7 {
		t.Fatalf("forced=%+v", forced)
	}
	if len(q.PopReady(9)) != 0 {
		t.Fatalf("key 1 is not due until 10")
	}
}

func TestPush_CapacityEvictsLowestThenOldest(t *testing.T) {
	q := New(3)
	q.Push(Event{Key: 1, Priority: 2})
	q.Push(Event{Key: 2, Priority: 1})
	q.Push(Event{Key: 3, Priority: 1})

	ev, did, ok := q.Push(Event{Key: 4, Priority: 5})
	if !did || !ok || ev.Key != 2 {
		t.Fatalf("evicted=%+v did=%v ok=%v want oldest low-priority key 2", ev, did, ok)
	}
	if q.Len() != 3 {
		t.Fatalf("len=%d want 3", q.Len())
	}

	ev, did, ok = q.Push(Event{Key: 6, Priority: 0})
	if !did || ok || ev.Key != 6 {
		t.Fatalf("lower-priority incoming should be rejected, got %+v ok=%v", ev, ok)
	}

	ev, _, ok = q.Push(Event{Key: 8, Priority: 1})
	if !ok || ev.Key != 3 {
		t.Fatalf("equal priority should evict the older entry, evicted %+v", ev)
	}
}

func TestLenNeverExceedsCapacity(t *testing.T) {
	q := New(4)
	for i := 0; i < 100; i++ {
		q.Push(Event{Key: 0, Priority: i % 7})
		if q.Len() > q.Capacity() {
			t.Fatalf("len %d > capacity %d", q.Len(), q.Capacity())
		}
	}
}

func TestRequeue_KeepsAge(t *testing.T) {
	q := New(2)
	q.Push(Event{Key: 1, Priority: 1})
	due := q.PopReady(0)
	q.Push(Event{Key: 2, Priority: 1})
	q.Requeue(due[0])
	ev, _, _ := q.Push(Event{Key: 3, Priority: 1})
	if ev.Key != 1 {
		t.Fatalf("requeued event should still be oldest, evicted %+v", ev)
	}
}

func TestRestore(t *testing.T) {
	q := New(4)
	q.Push(Event{Key: 1, ScheduledTick: 4, Priority: 2, Source: SourceMilestone, Origin: "career"})
	b, err := json.Marshal(q.Events())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var es []Event
	if err := json.Unmarshal(b, &es); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	r := Restore(4, es, q.NextSeq())
	if r.Len() != 1 || r.Events()[0].Source != SourceMilestone || r.NextSeq() != 1 {
		t.Fatalf("restored=%+v next=%d", r.Events(), r.NextSeq())
	}
}
