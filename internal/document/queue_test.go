package document

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recorder collects the jobs a handler saw
type recorder struct {
	mu   sync.Mutex
	jobs []Job
}

func (r *recorder) add(job Job) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return len(r.jobs)
}

func (r *recorder) attempts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Attempt)
	}
	return out
}

func (r *recorder) documentIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.DocumentID)
	}
	return out
}

var _ = Describe("Queue", func() {
	var (
		ctx   context.Context
		rec   *recorder
		queue *Queue
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = &recorder{}
	})

	AfterEach(func() {
		if queue != nil {
			queue.Shutdown(ctx)
		}
	})

	When("jobs succeed", func() {
		BeforeEach(func() {
			queue = NewQueue(func(_ context.Context, job Job) error {
				rec.add(job)
				return nil
			}, nil, WithWorkers(2))
		})

		It("runs every queued document once", func() {
			for _, id := range []string{"a", "b", "c"} {
				jobID, err := queue.Enqueue(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(jobID).NotTo(BeEmpty())
			}
			Eventually(rec.documentIDs).Should(ConsistOf("a", "b", "c"))
			Expect(rec.attempts()).To(Equal([]int{1, 1, 1}))
		})
	})

	When("a job fails transiently", func() {
		BeforeEach(func() {
			queue = NewQueue(func(_ context.Context, job Job) error {
				if rec.add(job) < 3 {
					return errors.New("connection reset")
				}
				return nil
			}, nil, WithWorkers(1), WithMaxAttempts(5), WithBackoff(time.Millisecond))
		})

		It("retries until it succeeds", func() {
			_, err := queue.Enqueue(ctx, "doc-1")
			Expect(err).NotTo(HaveOccurred())
			Eventually(rec.attempts).Should(Equal([]int{1, 2, 3}))
			Consistently(rec.attempts, 50*time.Millisecond).Should(HaveLen(3))
		})
	})

	When("a job keeps failing", func() {
		BeforeEach(func() {
			queue = NewQueue(func(_ context.Context, job Job) error {
				rec.add(job)
				return errors.New("timeout")
			}, nil, WithWorkers(1), WithMaxAttempts(2), WithBackoff(time.Millisecond))
		})

		It("gives up after the maximum attempts", func() {
			_, err := queue.Enqueue(ctx, "doc-1")
			Expect(err).NotTo(HaveOccurred())
			Eventually(rec.attempts).Should(Equal([]int{1, 2}))
			Consistently(rec.attempts, 50*time.Millisecond).Should(HaveLen(2))
		})
	})

	When("a job fails permanently", func() {
		BeforeEach(func() {
			queue = NewQueue(func(_ context.Context, job Job) error {
				rec.add(job)
				return Permanent(errors.New("unsupported"))
			}, nil, WithWorkers(1), WithMaxAttempts(5), WithBackoff(time.Millisecond))
		})

		It("does not retry", func() {
			_, err := queue.Enqueue(ctx, "doc-1")
			Expect(err).NotTo(HaveOccurred())
			Eventually(rec.attempts).Should(Equal([]int{1}))
			Consistently(rec.attempts, 50*time.Millisecond).Should(HaveLen(1))
		})
	})

	When("the buffer is full", func() {
		var (
			started chan struct{}
			release chan struct{}
		)

		BeforeEach(func() {
			started = make(chan struct{}, 1)
			release = make(chan struct{})
			queue = NewQueue(func(_ context.Context, job Job) error {
				started <- struct{}{}
				<-release
				return nil
			}, nil, WithWorkers(1), WithQueueSize(1))
		})

		It("rejects new jobs without blocking", func() {
			_, err := queue.Enqueue(ctx, "running")
			Expect(err).NotTo(HaveOccurred())
			Eventually(started).Should(Receive())

			_, err = queue.Enqueue(ctx, "buffered")
			Expect(err).NotTo(HaveOccurred())

			_, err = queue.Enqueue(ctx, "rejected")
			Expect(err).To(MatchError(ErrQueueFull))

			close(release)
		})
	})

	When("the queue is shut down", func() {
		BeforeEach(func() {
			queue = NewQueue(func(_ context.Context, job Job) error {
				rec.add(job)
				return nil
			}, nil, WithWorkers(1))
		})

		It("drains queued jobs before returning", func() {
			for _, id := range []string{"a", "b", "c"} {
				_, err := queue.Enqueue(ctx, id)
				Expect(err).NotTo(HaveOccurred())
			}
			queue.Shutdown(ctx)
			Expect(rec.documentIDs()).To(Equal([]string{"a", "b", "c"}))
		})

		It("rejects new jobs", func() {
			queue.Shutdown(ctx)
			_, err := queue.Enqueue(ctx, "late")
			Expect(err).To(MatchError(ErrQueueClosed))
		})
	})
})

var _ = Describe("Permanent", func() {
	It("keeps the cause reachable", func() {
		cause := errors.New("unsupported")
		err := Permanent(cause)
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(Equal("unsupported"))
		Expect(isPermanent(err)).To(BeTrue())
		Expect(isPermanent(cause)).To(BeFalse())
	})

	It("returns nil for nil", func() {
		Expect(Permanent(nil)).To(BeNil())
	})
})
