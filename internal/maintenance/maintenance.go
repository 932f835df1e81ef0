// Package maintenance keeps the stroke store healthy in the background:
// periodic WAL checkpoints so the database file stays compact, plus a
// storage stats log line for operators.
package maintenance

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aolo2/desk/internal/db"
)

type Config struct {
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
	}
}

type Service struct {
	store  *db.Store
	config Config
	stop   chan struct{}
	wg     sync.WaitGroup
	log    *logrus.Entry
}

func New(store *db.Store, config Config) *Service {
	return &Service{
		store:  store,
		config: config,
		stop:   make(chan struct{}),
		log:    logrus.WithField("component", "maintenance"),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.WithField("interval", s.config.Interval).Info("Maintenance service started")
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.log.Info("Maintenance service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Service) runOnce() {
	if err := s.store.Checkpoint(); err != nil {
		s.log.WithError(err).Warn("WAL checkpoint failed")
		return
	}

	stats, err := s.store.GetStats()
	if err != nil {
		s.log.WithError(err).Warn("Failed to read store stats")
		return
	}

	s.log.WithFields(logrus.Fields{
		"desks":   stats["desk_count"],
		"strokes": stats["stroke_count"],
	}).Info("Checkpoint complete")
}

// RunNow triggers one maintenance pass outside the schedule.
func (s *Service) RunNow() {
	s.runOnce()
}
