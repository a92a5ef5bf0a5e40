package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"lms-quiz-engine/internal/domain"
)

// QuizLoader fetches a full quiz aggregate from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache keeps quiz aggregates in process memory with a jittered TTL so the
// hot attempt paths stay off the database. Authoring writes call Invalidate,
// which drops the entry immediately; the TTL only bounds staleness for writes
// that happen outside this process.
type QuizCache struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	rnd     *rand.Rand
	entries map[string]quizEntry
}

type quizEntry struct {
	quiz    domain.Quiz
	staleAt time.Time
}

func NewQuizCache(loader QuizLoader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]quizEntry),
	}
}

// GetQuiz serves from the cache while the entry is fresh, otherwise loads once
// per key no matter how many callers miss at the same time.
func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.fresh(quizID); ok {
		return quiz, nil
	}
	result, err, _ := c.group.Do(quizID, func() (interface{}, error) {
		// An earlier flight may have filled the entry while we queued.
		if quiz, ok := c.fresh(quizID); ok {
			return quiz, nil
		}
		quiz, err := c.refresh(ctx, quizID)
		return quiz, err
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the entry so the next read hits the backing store.
func (c *QuizCache) Invalidate(_ context.Context, quizID string) error {
	c.mu.Lock()
	delete(c.entries, quizID)
	c.mu.Unlock()
	return nil
}

func (c *QuizCache) fresh(quizID string) (domain.Quiz, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[quizID]
	if !ok || !entry.staleAt.After(c.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (c *QuizCache) refresh(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := c.loader.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	c.mu.Lock()
	c.entries[quizID] = quizEntry{quiz: quiz, staleAt: c.clock().Add(c.lifetime())}
	c.mu.Unlock()
	return quiz, nil
}

// lifetime spreads expirations by up to 10% past the base TTL. Callers hold mu.
func (c *QuizCache) lifetime() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	return c.ttl + time.Duration(c.rnd.Int63n(int64(c.ttl)/10+1))
}
