package session

import (
	"sync"
	"time"
)

// DefaultQuestionBudget is how long a question stays open for resubmission.
const DefaultQuestionBudget = 180 * time.Second

// Summary reports the outcome of a run.
type Summary struct {
	Correct     int      `json:"correct"`
	Wrong       int      `json:"wrong"`
	Total       int      `json:"total"`
	CorrectURLs []string `json:"correct_urls"`
	WrongURLs   []string `json:"wrong_urls"`
}

// Tracker holds per-run submission state. It is safe for concurrent use so
// HTTP handlers can read summaries while a run mutates it.
type Tracker struct {
	mu sync.Mutex

	correct      map[string]struct{}
	correctOrder []string
	wrong        []string

	current  string
	attempts int
	opened   time.Time

	budget time.Duration
	now    func() time.Time
}

// NewTracker creates an empty tracker. budget <= 0 uses DefaultQuestionBudget.
func NewTracker(budget time.Duration) *Tracker {
	if budget <= 0 {
		budget = DefaultQuestionBudget
	}
	t := &Tracker{budget: budget, now: time.Now}
	t.Reset()
	return t
}

// Reset clears all state for a new run.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.correct = make(map[string]struct{})
	t.correctOrder = nil
	t.wrong = nil
	t.current = ""
	t.attempts = 0
	t.opened = t.now()
}

// Record stores a submission outcome for url.
func (t *Tracker) Record(url string, correct bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if correct {
		if _, ok := t.correct[url]; !ok {
			t.correct[url] = struct{}{}
			t.correctOrder = append(t.correctOrder, url)
		}
		for i, w := range t.wrong {
			if w == url {
				t.wrong = append(t.wrong[:i], t.wrong[i+1:]...)
				break
			}
		}
		return
	}

	if _, ok := t.correct[url]; ok {
		return
	}
	for _, w := range t.wrong {
		if w == url {
			return
		}
	}
	t.wrong = append(t.wrong, url)
}

// Open makes url the current question and restarts its attempt counter and
// time budget.
func (t *Tracker) Open(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = url
	t.attempts = 0
	t.opened = t.now()
}

// Current returns the question being worked on.
func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// IncAttempt bumps the current question's attempt counter and returns it.
func (t *Tracker) IncAttempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	return t.attempts
}

// Attempts returns the current question's attempt counter.
func (t *Tracker) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// TimeRemaining returns how much of the current question's budget is left,
// never negative.
func (t *Tracker) TimeRemaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	left := t.budget - t.now().Sub(t.opened)
	if left < 0 {
		return 0
	}
	return left
}

// IsCorrect reports whether url has been answered correctly.
func (t *Tracker) IsCorrect(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.correct[url]
	return ok
}

// CorrectCount returns the number of distinct correctly answered URLs.
func (t *Tracker) CorrectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.correct)
}

// Wrong returns a copy of the wrong list in first-seen order.
func (t *Tracker) Wrong() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.wrong...)
}

// Summary returns counts and URL lists.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Summary{
		Correct:     len(t.correct),
		Wrong:       len(t.wrong),
		Total:       len(t.correct) + len(t.wrong),
		CorrectURLs: append([]string{}, t.correctOrder...),
		WrongURLs:   append([]string{}, t.wrong...),
	}
}
