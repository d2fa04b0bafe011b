package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

var ErrWorkerClosed = errors.New("db worker closed")

type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx context.Context
	fn  TxFn
	ch  chan error
}

// Worker は書き込みトランザクションを 1 本の goroutine で順番に実行する。
// 台帳の更新はすべてここを通るので、同じキーへの書き込みが交差しない。
type Worker struct {
	db   *sql.DB
	jobs chan job
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:   db,
		jobs: make(chan job, 256),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	<-w.done
}

// Do は fn を 1 つのトランザクションで実行し、結果を待つ。
// キュー待ちの間に ctx が切れたらジョブは実行されない。
// 実行が始まったジョブは ctx が切れても最後（COMMIT/ROLLBACK）まで走り、
// 呼び出し側には ctx.Err() だけが返る。
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, ch: ch}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWorkerClosed
	}
	select {
	case w.jobs <- j:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		if err := j.ctx.Err(); err != nil {
			j.ch <- err
			continue
		}
		j.ch <- w.run(context.WithoutCancel(j.ctx), j.fn)
	}
}

func (w *Worker) run(ctx context.Context, fn TxFn) error {
	return withTx(ctx, w.db, nil, func(tx *sql.Tx) error { return fn(ctx, tx) })
}
