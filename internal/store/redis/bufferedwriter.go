package redis

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	opSaveRule      = "save_rule"
	opDeleteRule    = "delete_rule"
	opAppendHistory = "append_history"
	opAckHistory    = "ack_history"

	defaultMaxBuffer = 10000
	flushTimeout     = 30 * time.Second
)

// pendingWrite is a store mutation held while the circuit is open.
type pendingWrite struct {
	Op    string
	ID    string
	Score float64
	Data  []byte
}

// writeBuffer holds writes rejected by an open breaker and replays them,
// in order, once the breaker closes again.
type writeBuffer struct {
	store *Store

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int
}

func newWriteBuffer(s *Store, maxBufferSize int) *writeBuffer {
	if maxBufferSize <= 0 {
		maxBufferSize = defaultMaxBuffer
	}
	wb := &writeBuffer{
		store:  s,
		buffer: make([]pendingWrite, 0, 64),
		maxBuf: maxBufferSize,
	}

	prev := s.cb.OnStateChange
	s.cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go wb.flush()
		}
	}
	return wb
}

func (wb *writeBuffer) add(pw pendingWrite) {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	if len(wb.buffer) >= wb.maxBuf {
		// Full: drop oldest
		wb.buffer = wb.buffer[1:]
	}
	wb.buffer = append(wb.buffer, pw)
}

// flush replays all buffered writes. A write that fails again is dropped
// and logged; the breaker decides whether later ones are attempted.
func (wb *writeBuffer) flush() {
	wb.mu.Lock()
	if len(wb.buffer) == 0 {
		wb.mu.Unlock()
		return
	}
	toFlush := wb.buffer
	wb.buffer = make([]pendingWrite, 0, 64)
	wb.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	flushed := 0
	for i, pw := range toFlush {
		err := wb.store.cb.Execute(func() error { return wb.store.apply(ctx, pw) })
		if err == ErrCircuitOpen {
			// Reopened mid-flush: keep the rest, ahead of anything newer.
			wb.requeue(toFlush[i:])
			break
		}
		if err != nil {
			log.Printf("[redis-buffer] replay %s %s failed: %v", pw.Op, pw.ID, err)
			continue
		}
		flushed++
	}

	log.Printf("[redis-buffer] flushed %d buffered writes", flushed)
}

func (wb *writeBuffer) requeue(rest []pendingWrite) {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	merged := append(append(make([]pendingWrite, 0, len(rest)+len(wb.buffer)), rest...), wb.buffer...)
	if over := len(merged) - wb.maxBuf; over > 0 {
		merged = merged[over:]
	}
	wb.buffer = merged
}

func (wb *writeBuffer) pendingCount() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return len(wb.buffer)
}
