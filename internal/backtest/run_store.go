package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	storemodel "scalper/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrRunNotFound = errors.New("backtest run not found")

const insertBatch = 200

type (
	runModel      = storemodel.BacktestRunModel
	tradeModel    = storemodel.BacktestTradeModel
	snapshotModel = storemodel.BacktestSnapshotModel
	eventModel    = storemodel.BacktestEventModel
)

// ResultStore 保存回放任务、成交、资金曲线与迁移事件（Gorm + SQLite）。
type ResultStore struct {
	db   *gorm.DB
	path string
	now  func() time.Time
}

func NewResultStore(path string) (*ResultStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("result store path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &snapshotModel{}, &eventModel{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &ResultStore{db: db, path: path, now: time.Now}, nil
}

func (s *ResultStore) Path() string { return s.path }

func (s *ResultStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func terminal(status string) bool {
	return status == RunStatusDone || status == RunStatusFailed
}

// InsertRun 写入一条 run 记录。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return err
	}
	now := s.now().UnixMilli()
	row := runModel{
		ID:             run.ID,
		Symbol:         run.Symbol,
		Strategy:       run.Strategy,
		Status:         run.Status,
		StartTS:        run.StartTS,
		EndTS:          run.EndTS,
		InitialBalance: run.Config.InitialBalance,
		FinalBalance:   run.Stats.FinalBalance,
		TotalPnL:       run.Stats.TotalPnL,
		ROI:            run.Stats.ROI,
		WinRate:        run.Stats.WinRate,
		Trades:         run.Stats.Trades,
		ConfigJSON:     datatypes.JSON(cfgJSON),
		StatsJSON:      datatypes.JSON(statsJSON),
		Message:        run.Message,
		CreatedAtUnix:  now,
		UpdatedAtUnix:  now,
	}
	if !run.CompletedAt.IsZero() {
		ms := run.CompletedAt.UnixMilli()
		row.CompletedAt = &ms
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// UpdateRunSummary 更新状态与统计；终态时记录 completed_at。
func (s *ResultStore) UpdateRunSummary(ctx context.Context, id string, status string, stats RunStats, message string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return s.updateRun(ctx, id, status, map[string]any{
		"message":       message,
		"final_balance": stats.FinalBalance,
		"total_pnl":     stats.TotalPnL,
		"roi":           stats.ROI,
		"win_rate":      stats.WinRate,
		"trades":        stats.Trades,
		"stats_json":    datatypes.JSON(statsJSON),
	})
}

// UpdateRunStatus 仅更新状态与提示。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	return s.updateRun(ctx, id, status, map[string]any{"message": message})
}

func (s *ResultStore) updateRun(ctx context.Context, id, status string, fields map[string]any) error {
	now := s.now().UnixMilli()
	fields["status"] = status
	fields["updated_at"] = now
	if terminal(status) {
		fields["completed_at"] = now
	}
	return s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(fields).Error
}

// InsertTrades 写入全部平仓记录，seq 保持回放顺序。
func (s *ResultStore) InsertTrades(ctx context.Context, runID string, trades []TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	rows := make([]tradeModel, len(trades))
	for i, t := range trades {
		rows[i] = tradeModel{
			RunID: runID, TradeID: t.ID, Seq: i, Kind: t.Kind, Direction: t.Direction,
			EntryTime: t.EntryTime, ExitTime: t.ExitTime, Entry: t.Entry, Exit: t.Exit,
			StopLoss: t.StopLoss, TakeProfit: t.TakeProfit, Size: t.Size,
			GrossPnL: t.GrossPnL, Fee: t.Fee, PnL: t.PnL, PnLPct: t.PnLPct,
			Reason: t.Reason, BalanceAfter: t.BalanceAfter, Quality: t.Quality,
		}
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, insertBatch).Error
}

func (s *ResultStore) InsertSnapshots(ctx context.Context, runID string, snaps []Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	rows := make([]snapshotModel, len(snaps))
	for i, snap := range snaps {
		rows[i] = snapshotModel{RunID: runID, TS: snap.TS, Balance: snap.Balance, Drawdown: snap.Drawdown}
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, insertBatch).Error
}

func (s *ResultStore) InsertEvents(ctx context.Context, runID string, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]eventModel, len(events))
	for i, ev := range events {
		rows[i] = eventModel{RunID: runID, TS: ev.TS, Kind: ev.Kind, Reason: ev.Reason, Payload: ev.Payload}
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, insertBatch).Error
}

// clampLimit 把非法或过大的 limit 收敛到默认值。
func clampLimit(limit, def, ceiling int) int {
	if limit <= 0 || limit > ceiling {
		return def
	}
	return limit
}

func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var rows []runModel
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(clampLimit(limit, 50, 100)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := runFromModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	var row runModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	return runFromModel(row)
}

func (s *ResultStore) ListTrades(ctx context.Context, runID string, limit int) ([]TradeRecord, error) {
	var rows []tradeModel
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("seq ASC").
		Limit(clampLimit(limit, 500, 5000)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]TradeRecord, len(rows))
	for i, r := range rows {
		out[i] = TradeRecord{
			ID: r.TradeID, RunID: r.RunID, Kind: r.Kind, Direction: r.Direction,
			EntryTime: r.EntryTime, ExitTime: r.ExitTime, Entry: r.Entry, Exit: r.Exit,
			StopLoss: r.StopLoss, TakeProfit: r.TakeProfit, Size: r.Size,
			GrossPnL: r.GrossPnL, Fee: r.Fee, PnL: r.PnL, PnLPct: r.PnLPct,
			Reason: r.Reason, BalanceAfter: r.BalanceAfter, Quality: r.Quality,
		}
	}
	return out, nil
}

func (s *ResultStore) ListSnapshots(ctx context.Context, runID string, limit int) ([]Snapshot, error) {
	var rows []snapshotModel
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("ts ASC").Order("id ASC").
		Limit(clampLimit(limit, 1000, 5000)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(rows))
	for i, r := range rows {
		out[i] = Snapshot{ID: r.ID, RunID: r.RunID, TS: r.TS, Balance: r.Balance, Drawdown: r.Drawdown}
	}
	return out, nil
}

// ListEvents 返回 run 的迁移日志；kind 为空时不过滤。
func (s *ResultStore) ListEvents(ctx context.Context, runID, kind string, limit int) ([]Event, error) {
	q := s.db.WithContext(ctx).Where("run_id = ?", runID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var rows []eventModel
	err := q.Order("ts ASC").Order("id ASC").Limit(clampLimit(limit, 500, 5000)).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Event, len(rows))
	for i, r := range rows {
		out[i] = Event{ID: r.ID, RunID: r.RunID, TS: r.TS, Kind: r.Kind, Reason: r.Reason, Payload: r.Payload}
	}
	return out, nil
}

func runFromModel(row runModel) (Run, error) {
	run := Run{
		ID:        row.ID,
		Symbol:    row.Symbol,
		Strategy:  row.Strategy,
		Status:    row.Status,
		StartTS:   row.StartTS,
		EndTS:     row.EndTS,
		Message:   row.Message,
		CreatedAt: timeFromMillis(row.CreatedAtUnix),
		UpdatedAt: timeFromMillis(row.UpdatedAtUnix),
	}
	if row.CompletedAt != nil {
		run.CompletedAt = timeFromMillis(*row.CompletedAt)
	}
	if len(row.ConfigJSON) > 0 {
		if err := json.Unmarshal(row.ConfigJSON, &run.Config); err != nil {
			return Run{}, fmt.Errorf("run %s config: %w", row.ID, err)
		}
	}
	if len(row.StatsJSON) > 0 {
		if err := json.Unmarshal(row.StatsJSON, &run.Stats); err != nil {
			return Run{}, fmt.Errorf("run %s stats: %w", row.ID, err)
		}
	}
	return run, nil
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
