package crawl

import "testing"

func TestQueueFIFO(t *testing.T) {
	var q Queue
	for i := 0; i < 200; i++ {
		q.Push(Job{Path: string(rune('a' + i%26))})
	}
	if q.Len() != 200 {
		t.Fatalf("expected 200 pending, got %d", q.Len())
	}

	for i := 0; i < 200; i++ {
		job, ok := q.PopFront()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if want := string(rune('a' + i%26)); job.Path != want {
			t.Fatalf("pop %d: expected %q, got %q", i, want, job.Path)
		}
		if q.Len() != 199-i {
			t.Fatalf("pop %d: expected %d pending, got %d", i, 199-i, q.Len())
		}
	}

	if _, ok := q.PopFront(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestQueueInterleaved(t *testing.T) {
	var q Queue
	next := 0
	want := 0
	for round := 0; round < 50; round++ {
		for i := 0; i < 3; i++ {
			q.Push(Job{Key: string(rune(next))})
			next++
		}
		for i := 0; i < 2; i++ {
			job, ok := q.PopFront()
			if !ok || job.Key != string(rune(want)) {
				t.Fatalf("round %d: expected key %d, got %q (ok=%v)", round, want, job.Key, ok)
			}
			want++
		}
	}
	if q.Len() != next-want {
		t.Fatalf("expected %d pending, got %d", next-want, q.Len())
	}
}

func TestQueueClear(t *testing.T) {
	var q Queue
	q.Push(Job{Path: "/a/"})
	q.Push(Job{Path: "/b/"})
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after Clear, got %d", q.Len())
	}
	if _, ok := q.PopFront(); ok {
		t.Fatal("expected nothing to pop after Clear")
	}
}
