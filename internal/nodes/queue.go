package nodes

import (
	"fmt"
	"sync"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// ioQueue runs a node's blocking I/O off the runtime loop, one job at
	// a time and in submission order
	ioQueue struct {
		prod     topic.Producer[func()]
		cons     topic.Consumer[func()]
		stop     chan struct{}
		pending  sync.WaitGroup
		wg       sync.WaitGroup
		stopOnce sync.Once
	}
)

func newIOQueue() *ioQueue {
	t := caravan.NewTopic[func()]()
	q := &ioQueue{
		prod: t.NewProducer(),
		cons: t.NewConsumer(),
		stop: make(chan struct{}),
	}
	q.wg.Go(q.run)
	return q
}

func (q *ioQueue) run() {
	for {
		select {
		case <-q.stop:
			return
		case job, ok := <-q.cons.Receive():
			if !ok {
				return
			}
			job()
			q.pending.Done()
		}
	}
}

// enqueue runs job on the worker after everything queued before it
func (q *ioQueue) enqueue(job func()) {
	q.pending.Add(1)
	message.Send(q.prod, job)
}

// submit queues job for n. The job's error, or a panic, completes the
// message through done; a nil result sends the job's output first
func (q *ioQueue) submit(
	n *engine.Node, done engine.Done, job func() ([]api.Msg, error),
) {
	q.enqueue(func() {
		out, err := runJob(job)
		if err != nil {
			done(err)
			return
		}
		if len(out) > 0 {
			n.Post(func() {
				n.SendTo(0, out...)
			})
		}
		done(nil)
	})
}

// drain waits for queued jobs to finish, then stops the worker
func (q *ioQueue) drain() {
	q.pending.Wait()
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	q.wg.Wait()
	q.prod.Close()
	q.cons.Close()
}

func runJob(job func() ([]api.Msg, error)) (out []api.Msg, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", engine.ErrNodePanicked, r)
		}
	}()
	return job()
}
