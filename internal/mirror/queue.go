package mirror

import "sync"

// keyedQueue runs jobs one at a time per key, in submission order.
// Jobs with different keys run concurrently. Each job waits for the
// previous job of its key to settle before it starts.
type keyedQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newKeyedQueue() *keyedQueue {
	return &keyedQueue{tails: make(map[string]chan struct{})}
}

// Submit chains job after the current tail of key and returns a channel
// closed once job has returned.
func (q *keyedQueue) Submit(key string, job func()) <-chan struct{} {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = done
	q.mu.Unlock()

	go func() {
		defer func() {
			q.mu.Lock()
			if q.tails[key] == done {
				delete(q.tails, key)
			}
			q.mu.Unlock()
			close(done)
		}()
		if prev != nil {
			<-prev
		}
		job()
	}()
	return done
}

// Tails returns the completion channels of the last job of every busy key.
func (q *keyedQueue) Tails() []<-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	tails := make([]<-chan struct{}, 0, len(q.tails))
	for _, tail := range q.tails {
		tails = append(tails, tail)
	}
	return tails
}
