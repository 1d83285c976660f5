package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func newTestDetector(sched *fakeScheduler, maxRearms int, fired *atomic.Int32) *farewellDetector {
	return newFarewellDetector(defaultFarewellPhrases, 4*time.Second, maxRearms, sched.AfterFunc, func() {
		fired.Add(1)
	})
}

func TestFarewellMatchCaseInsensitive(t *testing.T) {
	d := newFarewellDetector(defaultFarewellPhrases, time.Second, 5, time.AfterFunc, func() {})
	defer d.cancel()

	cases := []struct {
		text string
		want bool
	}{
		{"Thank you so much — GOOD LUCK out there!", true},
		{"the interview is complete, you can hang up", true},
		{"muchas gracias y buena suerte", true},
		{"let's move on to the next question", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := d.matches(tc.text); got != tc.want {
			t.Fatalf("matches(%q)=%v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestFarewellDebounceRearms(t *testing.T) {
	sched := &fakeScheduler{}
	var fired atomic.Int32
	d := newTestDetector(sched, 5, &fired)

	if !d.observe("thank you for your time today") {
		t.Fatal("first farewell not observed")
	}
	if !d.observe("good luck with everything") {
		t.Fatal("second farewell not observed")
	}
	if sched.count() != 2 {
		t.Fatalf("scheduled=%d, want 2", sched.count())
	}

	// The first timer was cancelled by the re-arm.
	if sched.fire(0) {
		t.Fatal("cancelled timer fired")
	}
	if !sched.fire(1) {
		t.Fatal("re-armed timer did not fire")
	}
	if got := fired.Load(); got != 1 {
		t.Fatalf("confirms=%d, want 1", got)
	}
}

func TestFarewellRearmBudget(t *testing.T) {
	sched := &fakeScheduler{}
	var fired atomic.Int32
	d := newTestDetector(sched, 2, &fired)

	for i := 0; i < 6; i++ {
		d.observe("take care now")
	}
	// Initial arm plus two re-arms; the rest ride the pending timer.
	if sched.count() != 3 {
		t.Fatalf("scheduled=%d, want 3", sched.count())
	}
	if !sched.fire(2) {
		t.Fatal("pending timer did not fire")
	}
	if got := fired.Load(); got != 1 {
		t.Fatalf("confirms=%d, want 1", got)
	}
}

func TestFarewellCancelPreventsFire(t *testing.T) {
	sched := &fakeScheduler{}
	var fired atomic.Int32
	d := newTestDetector(sched, 5, &fired)

	d.observe("hasta luego")
	d.cancel()
	if sched.fireLast() {
		t.Fatal("cancelled detector fired")
	}
	if got := fired.Load(); got != 0 {
		t.Fatalf("confirms=%d, want 0", got)
	}

	// Observations after cancel never schedule.
	d.observe("good luck")
	if sched.count() != 1 {
		t.Fatalf("scheduled=%d after cancel, want 1", sched.count())
	}
}

func TestFarewellFiresOnce(t *testing.T) {
	sched := &fakeScheduler{}
	var fired atomic.Int32
	d := newTestDetector(sched, 5, &fired)

	d.observe("good luck")
	if !sched.fire(0) {
		t.Fatal("timer did not fire")
	}
	// A match after firing must not schedule again.
	d.observe("take care")
	if sched.count() != 1 {
		t.Fatalf("scheduled=%d, want 1", sched.count())
	}
	if got := fired.Load(); got != 1 {
		t.Fatalf("confirms=%d, want 1", got)
	}
}

func TestFarewellNoMatchNoTimer(t *testing.T) {
	sched := &fakeScheduler{}
	var fired atomic.Int32
	d := newTestDetector(sched, 5, &fired)

	if d.observe("tell me about a conflict you resolved") {
		t.Fatal("non-farewell observed as match")
	}
	if sched.count() != 0 {
		t.Fatalf("scheduled=%d, want 0", sched.count())
	}
}
