package service

import (
	"sync"
	"time"

	"github.com/Ed2902/ColectorAW/internal/aggregator"
	"github.com/Ed2902/ColectorAW/internal/config"
	"github.com/Ed2902/ColectorAW/internal/delivery"
	"github.com/Ed2902/ColectorAW/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Window selects the aggregation time range
type Window int

const (
	// WindowToday covers local midnight until now
	WindowToday Window = iota
	// WindowYesterday covers the full previous calendar day
	WindowYesterday
)

// AttendanceResult is the combined outcome of one attendance marking: the
// photo submission and, for "salida", the accompanying daily report.
type AttendanceResult struct {
	CorrelationID string
	Photo         models.DeliveryResult
	PhotoResponse map[string]any
	Report        *models.DeliveryResult
}

// CollectorService orchestrates aggregation, delivery and resend workflows
type CollectorService struct {
	aggregator *aggregator.Aggregator
	deliverer  *delivery.Deliverer
	cfg        *config.Config
	logger     *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
}

// New creates a new collector service
func New(
	agg *aggregator.Aggregator,
	del *delivery.Deliverer,
	cfg *config.Config,
	logger *zap.Logger,
) *CollectorService {
	return &CollectorService{
		aggregator: agg,
		deliverer:  del,
		cfg:        cfg,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// SendDailyReport aggregates the requested window and submits the result
// with a fresh correlation id. tipo is recorded in the report meta so the
// backend can relate it to an attendance marking.
func (s *CollectorService) SendDailyReport(window Window, tipo string) (models.DeliveryResult, error) {
	cid := uuid.New().String()
	meta := map[string]any{
		"correlation_id": cid,
		"marcacion_tipo": tipo,
	}

	var (
		report *models.DailyReport
		err    error
	)
	switch window {
	case WindowYesterday:
		report, err = s.aggregator.BuildYesterday(meta)
	default:
		report, err = s.aggregator.BuildToday(meta)
	}
	if err != nil {
		s.logger.Error("Aggregation failed", zap.Error(err))
		return models.DeliveryResult{}, err
	}

	return s.deliverer.SendReport(report)
}

// MarkAttendance submits an attendance photo. A nil umbral uses the
// configured default threshold. For "salida" it also sends today's report,
// sharing the photo's correlation id so the backend can link the two
// submissions.
func (s *CollectorService) MarkAttendance(photoPath, tipo string, umbral *float64) (AttendanceResult, error) {
	cid := uuid.New().String()

	photoRes, photoBody, err := s.deliverer.SendPhoto(delivery.PhotoRequest{
		Path:          photoPath,
		Tipo:          tipo,
		CorrelationID: cid,
		Umbral:        umbral,
	})
	result := AttendanceResult{
		CorrelationID: cid,
		Photo:         photoRes,
		PhotoResponse: photoBody,
	}
	if err != nil {
		return result, err
	}

	if tipo == "salida" {
		report, aerr := s.aggregator.BuildToday(map[string]any{
			"correlation_id": cid,
			"marcacion_tipo": tipo,
		})
		if aerr != nil {
			s.logger.Error("Aggregation failed", zap.Error(aerr))
			return result, aerr
		}
		reportRes, derr := s.deliverer.SendReport(report)
		result.Report = &reportRes
		if derr != nil {
			return result, derr
		}
	}

	return result, nil
}

// ResendPending sweeps both pending queues once
func (s *CollectorService) ResendPending() ([]models.ResendResult, error) {
	return s.deliverer.ResendAll()
}

// Start launches the scheduled resend loop when an interval is configured.
// With no interval the service stays passive and sweeps only on demand.
func (s *CollectorService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	interval := time.Duration(s.cfg.Resend.IntervalSec) * time.Second
	if interval <= 0 {
		s.logger.Info("Scheduled resend disabled")
		return
	}

	s.wg.Add(1)
	go s.resendLoop(interval)

	s.logger.Info("Scheduled resend started", zap.Duration("interval", interval))
}

// Stop stops the resend loop. An in-flight sweep finishes its current HTTP
// call before the loop exits.
func (s *CollectorService) Stop() {
	s.mu.Lock()
	select {
	case <-s.stopChan:
		s.mu.Unlock()
		return
	default:
		close(s.stopChan)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Collector service stopped")
}

func (s *CollectorService) resendLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			results, err := s.deliverer.ResendAll()
			if err != nil {
				s.logger.Error("Scheduled resend sweep failed", zap.Error(err))
				continue
			}
			if len(results) > 0 {
				s.logger.Info("Scheduled resend sweep done", zap.Int("entries", len(results)))
			}
		case <-s.stopChan:
			return
		}
	}
}
