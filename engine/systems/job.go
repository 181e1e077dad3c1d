package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
)

// JobTask is a unit of work run on one of the job system's workers.
type JobTask struct {
	Name string
	// Run is required.
	Run        func() error
	OnFailure  func(err error)
	OnComplete func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan submitted
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type submitted struct {
	task JobTask
	done func(error)
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = fmt.Errorf("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan submitted, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				err := run(job.task)
				if job.done != nil {
					job.done(err)
				}
			}
		}()
	}
}

func run(task JobTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %q panicked: %v", task.Name, r)
		}
		if err != nil {
			core.LogError("%s", err)
			if task.OnFailure != nil {
				task.OnFailure(err)
			}
			return
		}
		if task.OnComplete != nil {
			task.OnComplete()
		}
	}()
	if task.Run == nil {
		return fmt.Errorf("job %q has nothing to run", task.Name)
	}
	return task.Run()
}

/**
 * @brief Shuts the job system down. Queued jobs still run.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()
	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while the queue is full.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	return js.submit(submitted{task: jt})
}

func (js *JobSystem) submit(s submitted) error {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- s
	return nil
}

// RunAll runs tasks on the workers and waits for every one of them. The errors
// of failed tasks are joined.
func (js *JobSystem) RunAll(tasks ...JobTask) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, t := range tasks {
		wg.Add(1)
		err := js.submit(submitted{task: t, done: func(err error) {
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			wg.Done()
		}})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}
