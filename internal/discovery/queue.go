package discovery

// workQueue is a FIFO of pending items backed by a ring buffer. Push and pop
// are amortized O(1).
type workQueue[T any] struct {
	items []T
	head  int
	n     int
}

func newWorkQueue[T any](capacity int) *workQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &workQueue[T]{items: make([]T, capacity)}
}

func (q *workQueue[T]) len() int { return q.n }

func (q *workQueue[T]) push(v T) {
	if q.n == len(q.items) {
		grown := make([]T, 2*len(q.items))
		for i := range q.n {
			grown[i] = q.items[(q.head+i)%len(q.items)]
		}
		q.items, q.head = grown, 0
	}
	q.items[(q.head+q.n)%len(q.items)] = v
	q.n++
}

// pop removes the oldest item. It panics on an empty queue.
func (q *workQueue[T]) pop() T {
	if q.n == 0 {
		panic("discovery: pop from empty queue")
	}
	var zero T
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.n--
	return v
}
