package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/me/arc/pkg/model"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 200; i++ {
		q.Push(i)
	}
	if got := q.Len(); got != 200 {
		t.Fatalf("Len() = %d, want 200", got)
	}
	for i := 0; i < 200; i++ {
		got, err := q.PopNowait()
		if err != nil {
			t.Fatalf("PopNowait #%d: %v", i, err)
		}
		if got != i {
			t.Fatalf("PopNowait #%d = %d, want %d", i, got, i)
		}
	}
	if !q.Empty() {
		t.Error("queue should be empty after draining")
	}
}

func TestQueue_PopNowaitEmpty(t *testing.T) {
	q := New[string]()

	done := make(chan error, 1)
	go func() {
		_, err := q.PopNowait()
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrEmpty) {
			t.Errorf("err = %v, want ErrEmpty", err)
		}
	case <-time.After(time.Second):
		t.Fatal("PopNowait blocked on an empty queue")
	}
}

func TestQueue_InterleavedPushPop(t *testing.T) {
	q := New[int]()
	next := 0
	for round := 0; round < 50; round++ {
		for i := 0; i < 100; i++ {
			q.Push(round*100 + i)
		}
		for i := 0; i < 70; i++ {
			got, err := q.PopNowait()
			if err != nil {
				t.Fatalf("round %d: %v", round, err)
			}
			if got != next {
				t.Fatalf("round %d: got %d, want %d", round, got, next)
			}
			next++
		}
	}
	if got, want := q.Len(), 50*30; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
}

func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	q := New[int]()
	const producers, perProducer = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base*perProducer + i)
			}
		}(p)
	}

	var mu sync.Mutex
	seen := make(map[int]bool)
	var consumers sync.WaitGroup
	stop := make(chan struct{})
	for c := 0; c < 4; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				v, err := q.PopNowait()
				if errors.Is(err, ErrEmpty) {
					select {
					case <-stop:
						if q.Empty() {
							return
						}
					default:
					}
					continue
				}
				mu.Lock()
				if seen[v] {
					t.Errorf("item %d popped twice", v)
				}
				seen[v] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	close(stop)
	consumers.Wait()

	if len(seen) != producers*perProducer {
		t.Errorf("popped %d distinct items, want %d", len(seen), producers*perProducer)
	}
}

func TestFlags(t *testing.T) {
	f := NewFlags(3)
	if f.AllDone() {
		t.Fatal("fresh flags should not be done")
	}
	for i := 0; i < 3; i++ {
		f.SetDone(i)
	}
	if !f.AllDone() {
		t.Fatal("all slots set done but AllDone() is false")
	}
	f.SetBusy(1)
	if f.AllDone() {
		t.Error("AllDone() true with slot 1 busy")
	}
	if f.Done(1) || !f.Done(0) {
		t.Errorf("Snapshot = %v", f.Snapshot())
	}
	if got := f.Snapshot(); len(got) != 3 || got[1] {
		t.Errorf("Snapshot = %v", got)
	}
}

func TestUniversals_PublishOnce(t *testing.T) {
	u := NewUniversals()
	if _, ok := u.Get("threads"); ok {
		t.Fatal("unpublished universals returned a value")
	}

	src := map[string]any{"threads": 4, "checker_delay": "2s", "verbose": true, "mapper": "bowtie2"}
	if err := u.Publish(src); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	src["threads"] = 99 // caller's map must not alias the published one

	if err := u.Publish(map[string]any{"threads": 1}); !errors.Is(err, ErrAlreadyPublished) {
		t.Errorf("second Publish err = %v, want ErrAlreadyPublished", err)
	}

	if got := u.Int("threads", 1); got != 4 {
		t.Errorf("Int(threads) = %d, want 4", got)
	}
	if got := u.Duration("checker_delay", time.Second); got != 2*time.Second {
		t.Errorf("Duration(checker_delay) = %v, want 2s", got)
	}
	if !u.Bool("verbose", false) {
		t.Error("Bool(verbose) = false, want true")
	}
	if got := u.String("mapper", ""); got != "bowtie2" {
		t.Errorf("String(mapper) = %q", got)
	}
	if got := u.Int("missing", 7); got != 7 {
		t.Errorf("Int(missing) = %d, want default 7", got)
	}
	if got := u.Keys(); len(got) != 4 || got[0] != "checker_delay" {
		t.Errorf("Keys() = %v", got)
	}
}

func TestPair_SubmitClones(t *testing.T) {
	p := NewPair(2)
	params := &model.Params{Sample: "s1", Targets: model.NewTargetMap("t1")}
	env := model.NewEnvelope(model.RunnerAssemblyChecker, params, "check %s", params.Sample)

	p.Submit(env)
	env.Params.Targets.Mark("t1")

	got, err := p.Jobs.PopNowait()
	if err != nil {
		t.Fatalf("PopNowait: %v", err)
	}
	if got.Params.Targets["t1"] {
		t.Error("queued envelope was mutated through the submitter's copy")
	}
	if p.Flags.Len() != 2 {
		t.Errorf("Flags.Len() = %d, want 2", p.Flags.Len())
	}
}
