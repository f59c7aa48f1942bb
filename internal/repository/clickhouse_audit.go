package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"NiftyScan/internal/domain/models"
	pkgch "NiftyScan/pkg/clickhouse"
	applogger "NiftyScan/pkg/logger"
)

// Schema holds the idempotent DDL for the audit tables.
var Schema = []string{
	`CREATE DATABASE IF NOT EXISTS niftyscan`,
	`CREATE TABLE IF NOT EXISTS niftyscan.scan_cycles (
        seq         UInt64,
        started_at  DateTime64(3),
        finished_at DateTime64(3),
        scanned     UInt32,
        failed      UInt32
    ) ENGINE = MergeTree() ORDER BY seq`,
	`CREATE TABLE IF NOT EXISTS niftyscan.alerts (
        seq          UInt64,
        token        String,
        kind         String,
        status       String,
        triggered_at DateTime64(3),
        cleared_at   Nullable(DateTime64(3)),
        values       String
    ) ENGINE = MergeTree() ORDER BY (seq, token)`,
}

// CHAuditStore implements AuditStore backed by ClickHouse. Each completed
// cycle appends one row to scan_cycles and one row per alert to alerts.
type CHAuditStore struct {
	ch *pkgch.Client
	l  *applogger.Logger
}

func NewCHAuditStore(ch *pkgch.Client) *CHAuditStore {
	return &CHAuditStore{ch: ch}
}

// SetLogger injects a structured logger.
func (s *CHAuditStore) SetLogger(l *applogger.Logger) { s.l = l }

// Init ensures the audit database and tables exist.
func (s *CHAuditStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, Schema)
}

func (s *CHAuditStore) StoreCycle(ctx context.Context, cycle *models.ScanCycleResult) error {
	start := time.Now()

	const cycleIns = `INSERT INTO niftyscan.scan_cycles (seq, started_at, finished_at, scanned, failed) VALUES (?, ?, ?, ?, ?)`
	if err := s.ch.Exec(ctx, cycleIns,
		cycle.Seq, cycle.StartedAt, cycle.FinishedAt, uint32(cycle.Scanned), uint32(cycle.Failed),
	); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse store_cycle insert error",
				applogger.Uint64("seq", cycle.Seq),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("store cycle: %w", err)
	}

	const alertIns = `INSERT INTO niftyscan.alerts (seq, token, kind, status, triggered_at, cleared_at, values) VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, a := range cycle.Alerts {
		vals, err := json.Marshal(a.Values)
		if err != nil {
			return fmt.Errorf("marshal alert values: %w", err)
		}
		var clearedAt any
		if a.ClearedAt != nil {
			clearedAt = *a.ClearedAt
		}
		if err := s.ch.Exec(ctx, alertIns,
			cycle.Seq, a.Token, string(a.Kind), string(a.Status),
			a.TriggeredAt, clearedAt, string(vals),
		); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse store_cycle alert insert error",
					applogger.Uint64("seq", cycle.Seq),
					applogger.String("token", a.Token),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("store alert: %w", err)
		}
	}

	if s.l != nil {
		s.l.Info("clickhouse store_cycle ok",
			applogger.Uint64("seq", cycle.Seq),
			applogger.Int("alerts", len(cycle.Alerts)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHAuditStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHAuditStore) Close() error {
	return s.ch.Close()
}
