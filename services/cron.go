package services

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"pdf-rag-platform/internal/logger"
)

const stagingSweepTag = "staging-sweep"

// CronService runs housekeeping jobs on a UTC scheduler.
type CronService struct {
	scheduler *gocron.Scheduler
}

func NewCronService() *CronService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &CronService{scheduler: s}
}

// ScheduleStagingSweep removes staged uploads older than maxAge every interval.
// Files that old belong to ingestions that died without cleaning up.
func (c *CronService) ScheduleStagingSweep(staging *StagingArea, interval, maxAge time.Duration) error {
	_, err := c.scheduler.Every(interval).Tag(stagingSweepTag).Do(func() {
		removed, err := staging.Sweep(maxAge)
		if err != nil {
			logger.Error("Staging sweep failed", "error", err)
			return
		}
		if removed > 0 {
			logger.Info("Removed orphaned staging files", "count", removed, "dir", staging.Dir())
		}
	})
	if err != nil {
		return fmt.Errorf("schedule staging sweep: %w", err)
	}
	return nil
}

func (c *CronService) Start() {
	c.scheduler.StartAsync()
}

func (c *CronService) Stop() {
	c.scheduler.Stop()
}

// Jobs returns the number of scheduled jobs.
func (c *CronService) Jobs() int {
	return len(c.scheduler.Jobs())
}
