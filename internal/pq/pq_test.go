package pq_test

import (
	"math/rand"
	"sort"
	"testing"
	"testing/quick"

	"github.com/db47h/hlsim/internal/pq"
	"github.com/pkg/errors"
)

func appendMerge(v1, v2 []int) []int { return append(v1, v2...) }

func TestQueue_empty(t *testing.T) {
	q := pq.New(appendMerge)
	if !q.IsEmpty() {
		t.Fatal("new queue not empty")
	}
	if _, _, err := q.Peek(); errors.Cause(err) != pq.ErrEmpty {
		t.Fatalf("Peek: expected ErrEmpty, got %v", err)
	}
	if _, _, err := q.Dequeue(); errors.Cause(err) != pq.ErrEmpty {
		t.Fatalf("Dequeue: expected ErrEmpty, got %v", err)
	}
}

func TestQueue_order(t *testing.T) {
	q := pq.New(appendMerge)
	keys := []int64{5, -3, 12, 0, 7, 7, 1 << 40, -1 << 40, 2}
	for i, k := range keys {
		q.Enqueue(k, []int{i})
	}
	if q.Len() != len(keys)-1 {
		t.Fatalf("expected %d distinct keys, got %d", len(keys)-1, q.Len())
	}
	var prev int64
	first := true
	for !q.IsEmpty() {
		pk, _, err := q.Peek()
		if err != nil {
			t.Fatal(err)
		}
		k, v, err := q.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		if pk != k {
			t.Fatalf("Peek returned key %d, Dequeue %d", pk, k)
		}
		if !first && k <= prev {
			t.Fatalf("keys out of order: %d after %d", k, prev)
		}
		if k == 7 && (len(v) != 2 || v[0] != 4 || v[1] != 5) {
			t.Fatalf("bad merge at key 7: %v", v)
		}
		prev, first = k, false
	}
}

// every value enqueued at a key comes back exactly once, in enqueue order.
func TestQueue_merge(t *testing.T) {
	f := func(seed int64, n uint8) bool {
		r := rand.New(rand.NewSource(seed))
		q := pq.New(appendMerge)
		want := make(map[int64][]int)
		for i := 0; i < int(n); i++ {
			k := int64(r.Intn(8))
			q.Enqueue(k, []int{i})
			want[k] = append(want[k], i)
		}
		var got int
		for !q.IsEmpty() {
			k, v, _ := q.Dequeue()
			w := want[k]
			if len(w) != len(v) || !sort.IntsAreSorted(v) {
				return false
			}
			for i := range w {
				if w[i] != v[i] {
					return false
				}
			}
			got += len(v)
		}
		return got == int(n)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestQueue_reuseKey(t *testing.T) {
	q := pq.New(appendMerge)
	q.Enqueue(1, []int{1})
	if _, v, _ := q.Dequeue(); len(v) != 1 {
		t.Fatalf("unexpected value %v", v)
	}
	// a key that was dequeued starts a fresh entry.
	q.Enqueue(1, []int{2})
	if _, v, _ := q.Dequeue(); len(v) != 1 || v[0] != 2 {
		t.Fatalf("stale entry merged: %v", v)
	}
}
