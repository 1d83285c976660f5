package session

import (
	"strings"
	"sync"
	"time"

	"github.com/mbio-ai/interviewkit/pkg/interview/metrics"
)

// defaultFarewellPhrases are the fragments whose presence in a finalized
// agent utterance signals the interview is wrapping up. Matching is
// case-insensitive substring containment, OR semantics. Spanish fragments
// cover the bilingual agent voices.
var defaultFarewellPhrases = []string{
	"interview is complete",
	"that concludes our interview",
	"good luck",
	"thank you for your time",
	"take care",
	"buena suerte",
	"hasta luego",
	"gracias por tu tiempo",
}

// farewellDetector watches finalized agent utterances for end-of-interview
// phrases and schedules a single debounced confirmation. A later match
// re-arms the delay instead of stacking timers (last match wins), bounded by
// maxRearms so a pathological stream of near-farewells cannot postpone
// completion forever. Authoritative signals such as the agent leaving the
// room bypass the detector: the controller cancels it and completes
// directly.
type farewellDetector struct {
	phrases   []string
	delay     time.Duration
	maxRearms int
	afterFunc func(time.Duration, func()) *time.Timer
	onConfirm func()

	mu     sync.Mutex
	timer  *time.Timer
	rearms int
	done   bool
}

func newFarewellDetector(phrases []string, delay time.Duration, maxRearms int, afterFunc func(time.Duration, func()) *time.Timer, onConfirm func()) *farewellDetector {
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &farewellDetector{
		phrases:   lowered,
		delay:     delay,
		maxRearms: maxRearms,
		afterFunc: afterFunc,
		onConfirm: onConfirm,
	}
}

func (d *farewellDetector) matches(text string) bool {
	lowered := strings.ToLower(text)
	for _, p := range d.phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// observe tests one finalized agent utterance. On a match it arms the
// confirmation timer, replacing any pending one until the re-arm budget is
// spent. Returns whether the utterance matched.
func (d *farewellDetector) observe(text string) bool {
	if !d.matches(text) {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return true
	}
	if d.timer != nil {
		if d.rearms >= d.maxRearms {
			// Budget spent; let the pending timer run out.
			return true
		}
		d.timer.Stop()
		d.rearms++
		metrics.FarewellRearms.Inc()
	}
	d.timer = d.afterFunc(d.delay, d.fire)
	return true
}

func (d *farewellDetector) fire() {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return
	}
	d.done = true
	d.timer = nil
	d.mu.Unlock()
	d.onConfirm()
}

// cancel stops the detector without confirming. Called on every teardown
// path so a pending timer never fires against a destroyed session.
func (d *farewellDetector) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
