package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/core/ports/driving"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

const (
	// executionsKept is the number of executions kept per task.
	executionsKept = 100

	// defaultExecutionsLimit applies when Executions is asked for none.
	defaultExecutionsLimit = 20
)

// Scheduler runs the pipeline and the checkpoint sweep on their intervals.
//
// Every execution is logged in the SchedulerStore. A pipeline execution
// carries the id of the run it produced so the log can be joined with the
// run history.
type Scheduler struct {
	config      domain.SchedulerConfig
	store       driven.SchedulerStore
	pipeline    driving.Pipeline
	checkpoints driving.CheckpointService
	runOpts     domain.RunOptions
	log         logrus.FieldLogger

	// tick is how often due tasks are looked for.
	tick time.Duration
	now  func() time.Time

	mu       sync.Mutex
	running  bool
	stopped  bool
	inFlight map[string]bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler.
// runOpts is passed to every scheduled pipeline run.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	pipeline driving.Pipeline,
	checkpoints driving.CheckpointService,
	runOpts domain.RunOptions,
	log logrus.FieldLogger,
) *Scheduler {
	return &Scheduler{
		config:      config,
		store:       store,
		pipeline:    pipeline,
		checkpoints: checkpoints,
		runOpts:     runOpts,
		log:         log.WithField("component", "scheduler"),
		tick:        time.Minute,
		now:         time.Now,
		inFlight:    make(map[string]bool),
	}
}

// Start sets up the configured tasks and runs them until ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopped = false
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		s.log.WithError(err).Error("Failed to initialise tasks")
	}
	return s.loop(ctx)
}

// Stop ends the loop and waits for executions in progress.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// initialiseTasks saves a schedule for every active task and disables the
// ones the configuration turned off since they were saved.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	for _, id := range domain.TaskIDs() {
		if !s.config.Active(id) {
			if err := s.disableTask(ctx, id); err != nil {
				return err
			}
			continue
		}
		if err := s.ensureTask(ctx, id, s.config.Task(id).Interval); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) disableTask(ctx context.Context, id string) error {
	task, err := s.store.Task(ctx, id)
	if err != nil || task == nil || !task.Enabled {
		return err
	}
	task.Enabled = false
	s.log.WithField("task", id).Info("Task disabled by configuration")
	return s.store.SaveTask(ctx, task)
}

// ensureTask saves a new schedule, or restarts the interval of a saved one
// whose interval changed. The outcome of earlier executions is kept.
func (s *Scheduler) ensureTask(ctx context.Context, id string, interval time.Duration) error {
	task, err := s.store.Task(ctx, id)
	if err != nil {
		return err
	}

	now := s.now()
	switch {
	case task == nil:
		task = &domain.ScheduledTask{ID: id, Interval: interval, NextRun: now.Add(interval)}
	case task.Interval != interval:
		task.Interval = interval
		task.NextRun = now.Add(interval)
	}
	task.Enabled = true
	return s.store.SaveTask(ctx, task)
}

func (s *Scheduler) loop(ctx context.Context) error {
	s.runDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// Trigger runs a task now, ahead of its schedule. It is a no-op while the
// task is already running and fails once the scheduler was stopped.
func (s *Scheduler) Trigger(ctx context.Context, taskID string) error {
	task, err := s.store.Task(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	if !task.Enabled {
		return fmt.Errorf("task %s is disabled: %w", taskID, domain.ErrInvalidInput)
	}
	if !s.execute(ctx, task, domain.TriggerOnDemand) && s.isStopped() {
		return fmt.Errorf("task %s: scheduler stopped: %w", taskID, domain.ErrInvalidInput)
	}
	return nil
}

// Tasks returns the saved schedules.
func (s *Scheduler) Tasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	return s.store.Tasks(ctx)
}

// Executions returns recent executions, newest first.
func (s *Scheduler) Executions(ctx context.Context, taskID string, limit int) ([]domain.TaskExecution, error) {
	if limit <= 0 {
		limit = defaultExecutionsLimit
	}
	return s.store.Executions(ctx, taskID, limit)
}

func (s *Scheduler) runDue(ctx context.Context) {
	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to list tasks")
		return
	}

	now := s.now()
	for i := range tasks {
		if tasks[i].Due(now) {
			s.execute(ctx, &tasks[i], domain.TriggerSchedule)
		}
	}
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// execute starts one execution of task in the background unless the task
// is still running or the scheduler was stopped. It reports whether the
// execution started.
func (s *Scheduler) execute(ctx context.Context, task *domain.ScheduledTask, trigger domain.TaskTrigger) bool {
	log := s.log.WithFields(logrus.Fields{"task": task.ID, "trigger": trigger})

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		log.Debug("Scheduler stopped, skipping")
		return false
	}
	if s.inFlight[task.ID] {
		s.mu.Unlock()
		log.Debug("Task still running, skipping")
		return false
	}
	s.inFlight[task.ID] = true
	// Added under mu so Stop never waits on a group that is still growing.
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, task.ID)
			s.mu.Unlock()
		}()

		exec := domain.TaskExecution{TaskID: task.ID, Trigger: trigger, StartedAt: s.now()}
		var err error
		switch task.ID {
		case domain.TaskIDPipelineRun:
			err = s.runPipeline(ctx, &exec)
		case domain.TaskIDCheckpointSweep:
			err = s.runCheckpointSweep(ctx, &exec)
		default:
			log.Warn("Unknown task ID")
			return
		}
		exec.EndedAt = s.now()

		if err != nil {
			exec.Status = domain.RunFailed
			exec.Error = err.Error()
			log.WithError(err).WithField("run_id", exec.RunID).Error("Task failed")
		} else {
			if exec.Status == "" {
				exec.Status = domain.RunCompleted
			}
			log.WithFields(logrus.Fields{
				"run_id":    exec.RunID,
				"batch_id":  exec.BatchID,
				"documents": exec.Documents,
				"removed":   exec.Removed,
			}).Info("Task completed")
		}
		s.record(context.WithoutCancel(ctx), task, exec)
	}()
	return true
}

func (s *Scheduler) record(ctx context.Context, task *domain.ScheduledTask, exec domain.TaskExecution) {
	log := s.log.WithField("task", task.ID)
	task.Record(exec)
	if err := s.store.SaveTask(ctx, task); err != nil {
		log.WithError(err).Error("Failed to save task")
	}
	if err := s.store.RecordExecution(ctx, &exec); err != nil {
		log.WithError(err).Error("Failed to record task execution")
	}
	if err := s.store.PruneExecutions(ctx, executionsKept); err != nil {
		log.WithError(err).Error("Failed to prune task executions")
	}
}

// runPipeline runs one pipeline cycle and links the execution to it.
func (s *Scheduler) runPipeline(ctx context.Context, exec *domain.TaskExecution) error {
	if s.pipeline == nil {
		return nil
	}
	result, err := s.pipeline.Run(ctx, s.runOpts)
	if result != nil {
		exec.RunID = result.RunID
		exec.BatchID = result.BatchID
		exec.Status = result.Status
		exec.Documents = result.Documents
	}
	return err
}

func (s *Scheduler) runCheckpointSweep(ctx context.Context, exec *domain.TaskExecution) error {
	if s.checkpoints == nil {
		return nil
	}
	n, err := s.checkpoints.Sweep(ctx)
	exec.Removed = n
	return err
}
