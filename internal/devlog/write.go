package devlog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// AddLog saves a new log with status PENDING, then embeds and indexes it.
//
// The store write is the durability boundary: once it succeeds the log is
// returned to the caller even if embedding or indexing fails, in which case
// the result carries an IndexingDeferred notice and the log stays PENDING.
func (s *service) AddLog(ctx context.Context, in AddLogInput) (*AddLogResult, error) {
	ctx, span := s.tracer.Start(ctx, "devlog.AddLog")
	defer span.End()

	log, err := newLog(uuid.New().String(), in, s.now().UTC())
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("log_id", log.ID),
		attribute.String("log_type", string(log.Type)),
		attribute.Int("tags", len(log.Tags)),
	)

	if err := s.store.Save(ctx, log); err != nil {
		err = storageErr("save log", err)
		recordSpanError(span, err)
		return nil, err
	}

	result := &AddLogResult{Log: log}
	deferred := s.indexLog(ctx, log)
	if deferred != nil {
		result.Deferred = deferred
		span.SetAttributes(attribute.String("deferred_stage", deferred.Stage))
		if s.deferCounter != nil {
			s.deferCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", deferred.Stage)))
		}
		s.logger.Warn("log saved but indexing deferred",
			zap.String("log_id", log.ID),
			zap.String("stage", deferred.Stage),
			zap.Error(deferred.Cause),
		)
		s.publish(ctx, Event{
			Type:    EventIndexDeferred,
			LogID:   log.ID,
			Module:  log.Module,
			LogType: log.Type,
			Stage:   deferred.Stage,
			Error:   deferred.Cause.Error(),
		})
	} else {
		s.publish(ctx, Event{Type: EventAdded, LogID: log.ID, Module: log.Module, LogType: log.Type})
	}

	if s.addCounter != nil {
		s.addCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(log.Type)),
			attribute.Bool("deferred", deferred != nil),
		))
	}

	s.logger.Info("added log",
		zap.String("log_id", log.ID),
		zap.String("type", string(log.Type)),
		zap.String("module", log.Module),
		zap.String("index_status", string(log.IndexStatus)),
	)
	return result, nil
}

// indexLog embeds log, upserts its vector and marks it INDEXED.
// On success log.IndexStatus is updated in place.
func (s *service) indexLog(ctx context.Context, log *Log) *IndexingDeferred {
	ctx, cancel := context.WithTimeout(ctx, s.config.IndexTimeout)
	defer cancel()

	vector, err := s.embedder.EmbedDocument(ctx, log.EmbeddingText())
	if err != nil {
		return &IndexingDeferred{LogID: log.ID, Stage: StageEmbed, Cause: embeddingErr(err)}
	}

	if err := s.index.Upsert(ctx, log.ID, vector, PayloadFor(log)); err != nil {
		return &IndexingDeferred{LogID: log.ID, Stage: StageUpsert, Cause: vectorErr("upsert", err)}
	}

	if err := s.store.UpdateIndexStatus(ctx, log.ID, StatusIndexed); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Deleted while we were indexing; drop the vector just written.
			if delErr := s.index.Delete(ctx, log.ID); delErr != nil {
				s.logger.Warn("failed to drop vector of deleted log",
					zap.String("log_id", log.ID), zap.Error(delErr))
			}
		}
		return &IndexingDeferred{LogID: log.ID, Stage: StageMarkIndexed, Cause: storageErr("mark indexed", err)}
	}

	log.IndexStatus = StatusIndexed
	return nil
}

// IndexLog (re)indexes an existing log. Safe to repeat. Failures carry
// the kind of the failing collaborator, or ErrNotFound when the log was
// deleted meanwhile.
func (s *service) IndexLog(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "devlog.IndexLog")
	defer span.End()
	span.SetAttributes(attribute.String("log_id", id))

	log, err := s.GetLog(ctx, id)
	if err != nil {
		recordSpanError(span, err)
		return err
	}

	if deferred := s.indexLog(ctx, log); deferred != nil {
		recordSpanError(span, deferred.Cause)
		return deferred.Cause
	}

	s.publish(ctx, Event{Type: EventIndexed, LogID: log.ID, Module: log.Module, LogType: log.Type})
	s.logger.Debug("indexed log", zap.String("log_id", log.ID))
	return nil
}

// DeleteLog removes a log. The vector is deleted before the log row so that
// a crash in between leaves a harmless unindexed log instead of an orphan.
func (s *service) DeleteLog(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "devlog.DeleteLog")
	defer span.End()
	span.SetAttributes(attribute.String("log_id", id))

	if strings.TrimSpace(id) == "" {
		err := fmt.Errorf("%w: id is required", ErrValidation)
		recordSpanError(span, err)
		return err
	}

	log, err := s.store.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			err = storageErr("find log", err)
		}
		recordSpanError(span, err)
		return err
	}

	if err := s.index.Delete(ctx, id); err != nil {
		err = vectorErr("delete", err)
		recordSpanError(span, err)
		return err
	}

	deleted, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		err = storageErr("delete log", err)
		recordSpanError(span, err)
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.publish(ctx, Event{Type: EventDeleted, LogID: id, Module: log.Module, LogType: log.Type})
	s.logger.Info("deleted log", zap.String("log_id", id))
	return nil
}
