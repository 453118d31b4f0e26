// Package async runs independent named tasks on a bounded set of workers.
package async

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type Task struct {
	Name    string
	Execute func(ctx context.Context) (interface{}, error)
}

type Result struct {
	Name string
	Data interface{}
	Err  error
}

// Pool is reusable; every Execute call gets its own channels.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result{Name: task.Name, Err: err}
			continue
		}
		results <- run(ctx, task)
	}
}

func run(ctx context.Context, task Task) (result Result) {
	result.Name = task.Name
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	result.Data, result.Err = task.Execute(ctx)
	return result
}

// Execute runs every task and returns one Result per task name. Tasks that
// never started because ctx was cancelled carry ctx.Err().
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	workers := p.workerCount
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, taskCh, resultCh, &wg)
	}

	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)
	wg.Wait()
	close(resultCh)

	results := make(map[string]Result, len(tasks))
	for result := range resultCh {
		results[result.Name] = result
	}
	return results
}

// FirstError returns the error of the alphabetically first failed task, or nil.
func FirstError(results map[string]Result) error {
	names := make([]string, 0, len(results))
	for name, result := range results {
		if result.Err != nil {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return fmt.Errorf("%s: %w", names[0], results[names[0]].Err)
}
