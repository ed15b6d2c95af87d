// Package medlist holds the one normalize -> model call -> recover sequence
// that every transport adapter goes through.
package medlist

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"medlist/api/internal/intake"
	"medlist/api/internal/metrics"
	"medlist/api/internal/ocr"
	"medlist/api/internal/ocr/types"
	"medlist/api/internal/recovery"
	"medlist/api/internal/util"
)

const rawLogLimit = 2048

type Service struct {
	engs    *ocr.Engines
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewService(engs *ocr.Engines, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	for _, st := range recovery.Stages {
		m.InitStages(string(st))
	}
	return &Service{engs: engs, log: log, metrics: m}
}

type Request struct {
	ID      string
	Adapter string
	LLMName string
	Input   intake.Input
}

// Parse is safe for concurrent use. ctx bounds the model call; once it is
// done the call is abandoned and ctx.Err() comes back wrapped in an UpstreamError.
func (s *Service) Parse(ctx context.Context, req Request) (types.MedicationList, error) {
	log := s.log.With(zap.String("request_id", req.ID), zap.String("adapter", req.Adapter))

	list, err := s.parse(ctx, log, req)
	outcome := Outcome(err)
	s.metrics.Request(req.Adapter, outcome)
	if err != nil {
		log.Warn("parse failed", zap.String("outcome", outcome), zap.Error(err))
	}
	return list, err
}

func (s *Service) parse(ctx context.Context, log *zap.Logger, req Request) (types.MedicationList, error) {
	img, err := intake.Normalize(req.Input)
	if err != nil {
		return types.MedicationList{}, err
	}

	eng, err := s.engs.GetEngine(req.LLMName)
	if err != nil {
		return types.MedicationList{}, err
	}
	log = log.With(zap.String("engine", eng.Name()), zap.String("model", eng.GetModel()))

	start := time.Now()
	raw, err := eng.ExtractMedications(ctx, img)
	elapsed := time.Since(start)
	s.metrics.Upstream(eng.Name(), elapsed, err)
	if err != nil {
		return types.MedicationList{}, types.NewUpstreamError(eng.Name(), err)
	}
	log.Debug("model reply",
		zap.String("media_type", img.MediaType),
		zap.Int("image_bytes", len(img.Bytes)),
		zap.Duration("upstream", elapsed),
		zap.String("raw", util.Truncate(raw, rawLogLimit)),
	)

	res, err := recovery.Recover(raw)
	if err != nil {
		return types.MedicationList{}, err
	}
	s.metrics.Stage(string(res.Stage))
	log.Info("parsed medications",
		zap.String("stage", string(res.Stage)),
		zap.Int("count", len(res.List.Medications)),
		zap.Duration("upstream", elapsed),
	)
	return res.List, nil
}

// Outcome is a short, low-cardinality label for err.
func Outcome(err error) string {
	var up *types.UpstreamError
	switch {
	case err == nil:
		return "ok"
	case types.IsInvalidInput(err):
		return "invalid_input"
	case errors.Is(err, types.ErrUnknownEngine):
		return "unknown_engine"
	case errors.As(err, &up):
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "cancelled"
		}
		return "upstream"
	case errors.Is(err, types.ErrExtraction):
		return "extraction"
	case errors.Is(err, types.ErrSchemaValidation):
		return "schema"
	}
	return "error"
}
