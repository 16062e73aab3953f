// Package queue is a small persistent task queue used to deliver work that
// must not block a request, such as billing notifications.
//
// An Enqueuer writes one-time tasks, and a Worker claims them and dispatches
// each to the Handler registered under the task name. Storage sits behind two
// narrow interfaces, EnqueuerRepository and WorkerRepository, implemented by
// MemoryStorage for tests and single-process setups and by PostgresStorage
// for production, where concurrent workers claim rows with
// FOR UPDATE SKIP LOCKED.
//
// Failed tasks are retried with a linear backoff until MaxRetries is reached,
// after which they move to the dead letter queue for inspection.
//
// Usage:
//
//	type InvoiceEmail struct{ TenantID uuid.UUID }
//
//	enq, _ := queue.NewEnqueuer(storage)
//	_ = enq.Enqueue(ctx, InvoiceEmail{TenantID: id}, queue.WithMaxRetries(5))
//
//	w, _ := queue.NewWorker(storage, queue.WithPullInterval(time.Second))
//	_ = w.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, p InvoiceEmail) error {
//		return send(ctx, p)
//	}))
//	g.Go(w.Run(ctx))
package queue
