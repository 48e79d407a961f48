package commandlog

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/strefethen/sonos-dial-go/internal/sonos/soap"
)

const (
	DefaultRetention       = 72 * time.Hour
	DefaultPruneSchedule   = "@hourly"
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3

	writeQueueSize = 256
)

// Service records device commands and prunes old entries on a schedule.
type Service struct {
	logger    zerolog.Logger
	repo      *Repository
	retention time.Duration
	schedule  string
	now       func() time.Time

	cronMu sync.Mutex
	cron   *cron.Cron

	// queueMu guards queue and writerStopped; senders hold it for reading so
	// StopWriter never closes the queue under them.
	queueMu       sync.RWMutex
	queue         chan Entry
	writerDone    chan struct{}
	writerStopped bool
	dropped       atomic.Int64

	healthMu            sync.RWMutex
	healthy             bool
	consecutiveFailures int
}

// NewService creates a command log service. Zero retention or an empty
// schedule select the defaults.
func NewService(dbPair DBPair, retention time.Duration, schedule string, logger zerolog.Logger) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	return &Service{
		logger:    logger.With().Str("component", "commandlog").Logger(),
		repo:      NewRepository(dbPair),
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
		healthy:   true,
	}
}

// ObserveAction journals one SOAP action. Failures to write are logged and
// never reach the caller of the action; with the writer running, a full queue
// drops the entry instead of blocking.
func (s *Service) ObserveAction(record soap.ActionRecord) {
	entry := Entry{
		StartedAt:  record.Started,
		Host:       record.Host,
		Service:    string(record.Service),
		Action:     record.Action,
		DurationMs: record.Duration.Milliseconds(),
		Succeeded:  record.Err == nil,
	}
	if record.Err != nil {
		message := record.Err.Error()
		entry.Error = &message

		var transportErr *soap.TransportError
		if errors.As(record.Err, &transportErr) {
			if transportErr.StatusCode != 0 {
				statusCode := transportErr.StatusCode
				entry.StatusCode = &statusCode
			}
			if transportErr.FaultCode != "" {
				faultCode := transportErr.FaultCode
				entry.FaultCode = &faultCode
			}
		}
	}

	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	switch {
	case s.writerStopped:
		return
	case s.queue != nil:
		select {
		case s.queue <- entry:
		default:
			s.dropped.Add(1)
			s.logger.Warn().Str("action", record.Action).Msg("Command log queue full, dropping entry")
		}
	default:
		s.insert(entry)
	}
}

func (s *Service) insert(entry Entry) {
	if _, err := s.repo.Insert(entry); err != nil {
		s.recordFailure()
		s.logger.Warn().Err(err).Str("action", entry.Action).Msg("Failed to record command")
		return
	}
	s.recordSuccess()
}

// StartWriter moves journal writes onto a background goroutine so device
// commands never wait on the database. Without it ObserveAction writes inline.
func (s *Service) StartWriter() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.queue != nil || s.writerStopped {
		return
	}

	queue := make(chan Entry, writeQueueSize)
	done := make(chan struct{})
	s.queue = queue
	s.writerDone = done

	go func() {
		defer close(done)
		for entry := range queue {
			s.insert(entry)
		}
	}()
}

// StopWriter writes out every queued entry and waits for the writer to exit.
// Actions observed afterwards are not journaled.
func (s *Service) StopWriter() {
	s.queueMu.Lock()
	queue := s.queue
	done := s.writerDone
	s.queue = nil
	s.writerStopped = true
	s.queueMu.Unlock()

	if queue == nil {
		return
	}
	close(queue)
	<-done
	if dropped := s.dropped.Load(); dropped > 0 {
		s.logger.Warn().Int64("dropped", dropped).Msg("Command log dropped entries while the queue was full")
	}
}

// Query returns recent entries. The limit defaults to DefaultQueryLimit and
// is clamped to MaxQueryLimit.
func (s *Service) Query(filters QueryFilters) ([]Entry, error) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	entries, err := s.repo.Query(filters)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to query command log: %w", err)
	}
	s.recordSuccess()
	return entries, nil
}

// Get returns one entry.
func (s *Service) Get(entryID string) (*Entry, error) {
	entry, err := s.repo.Get(entryID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get command log entry: %w", err)
	}
	if entry == nil {
		return nil, &EntryNotFoundError{EntryID: entryID}
	}
	s.recordSuccess()
	return entry, nil
}

// Prune deletes entries older than the retention window.
func (s *Service) Prune() (int64, error) {
	count, err := s.repo.Prune(s.now().Add(-s.retention))
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune command log: %w", err)
	}
	s.recordSuccess()
	return count, nil
}

// StartPruneJob prunes once, then on the configured cron schedule.
func (s *Service) StartPruneJob() error {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron != nil {
		return nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(s.schedule, s.runPrune); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.schedule, err)
	}

	s.logger.Info().
		Str("schedule", s.schedule).
		Dur("retention", s.retention).
		Msg("Starting command log prune job")

	s.runPrune()
	scheduler.Start()
	s.cron = scheduler
	return nil
}

// StopPruneJob stops the schedule and waits for a running prune to finish.
func (s *Service) StopPruneJob() {
	s.cronMu.Lock()
	scheduler := s.cron
	s.cron = nil
	s.cronMu.Unlock()

	if scheduler == nil {
		return
	}
	<-scheduler.Stop().Done()
	s.logger.Info().Msg("Command log prune job stopped")
}

func (s *Service) runPrune() {
	count, err := s.Prune()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error pruning command log")
		return
	}
	if count > 0 {
		s.logger.Info().Int64("count", count).Msg("Pruned command log entries")
	}
}

// IsHealthy returns current health status.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

// recordFailure marks the service unhealthy after MaxConsecutiveFailures.
func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EntryNotFoundError is returned when a command log entry is not found.
type EntryNotFoundError struct {
	EntryID string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("command log entry not found: %s", e.EntryID)
}
