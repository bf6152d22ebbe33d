package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CronScheduler runs jobs on five field cron specs or descriptors such as
// @daily. Every scheduled run passes through a chain that recovers panics
// and drops a tick while the previous run of the same job is still busy.
type CronScheduler struct {
	cron  *cron.Cron
	chain cron.Chain
	jobs  map[string]*scheduledJob
	ctx   context.Context
}

// scheduledJob adapts a Job to cron.Job.
type scheduledJob struct {
	owner *CronScheduler
	job   Job
	spec  string
	id    cron.EntryID
}

func (s *scheduledJob) Run() {
	_ = execute(s.owner.ctx, s.job, s.spec)
}

func NewCronScheduler() *CronScheduler {
	clog := cronLogger{l: logutil.GetLogger(context.Background()).With(zap.String("component", "cron"))}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:  cron.New(cron.WithParser(parser), cron.WithLogger(clog)),
		chain: cron.NewChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		jobs:  make(map[string]*scheduledJob),
		ctx:   context.Background(),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	if _, dup := c.jobs[name]; dup {
		return fmt.Errorf("job %s already scheduled", name)
	}
	sj := &scheduledJob{owner: c, job: job, spec: spec}
	id, err := c.cron.AddJob(spec, c.chain.Then(sj))
	if err != nil {
		return fmt.Errorf("schedule %s with %q: %w", name, spec, err)
	}
	sj.id = id
	c.jobs[name] = sj
	logutil.GetLogger(c.ctx).Info("job registered", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Next reports the next activation of a scheduled job. It is zero before
// Start.
func (c *CronScheduler) Next(name string) (time.Time, bool) {
	sj, ok := c.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	return c.cron.Entry(sj.id).Next, true
}

// Start must be called before jobs fire; ctx is handed to every run.
func (c *CronScheduler) Start(ctx context.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
	c.cron.Start()
}

func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

// RunNow executes a job once on the calling goroutine, outside the cron
// timetable.
func (c *CronScheduler) RunNow(ctx context.Context, job Job) error {
	return execute(ctx, job, "manual")
}

func execute(ctx context.Context, job Job, trigger string) error {
	begin := time.Now()
	err := job.Run(ctx)
	fields := []zap.Field{
		zap.String("job", job.Name()),
		zap.String("trigger", trigger),
		zap.Duration("took", time.Since(begin)),
	}
	if err != nil {
		logutil.GetLogger(ctx).Error("job run failed", append(fields, zap.Error(err))...)
		return err
	}
	logutil.GetLogger(ctx).Info("job run done", fields...)
	return nil
}

// cronLogger routes cron's own messages into zap. Its Info stream is
// per tick, so it lands at debug level.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
