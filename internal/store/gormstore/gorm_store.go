package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scalper/internal/engine"
	storemodel "scalper/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type liveStateModel = storemodel.LiveStateModel
type liveTradeModel = storemodel.LiveTradeModel
type liveEventModel = storemodel.LiveEventModel

// Event 是 live_events 中的一条记录。
type Event struct {
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at"`
}

// GormStore 持久化 live/paper 的引擎快照、成交与事件（Gorm + SQLite）。
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore initializes a new GormStore instance.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: state_db 路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&liveStateModel{}, &liveTradeModel{}, &liveEventModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// live 写入是单协程的，HTTP 读可以并发一个连接。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StateKey 组合 live 槽位主键。
func StateKey(symbol, strategy string) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + "@" + strings.ToLower(strings.TrimSpace(strategy))
}

// SaveState upserts the engine snapshot for key.
func (s *GormStore) SaveState(ctx context.Context, key string, st engine.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("state key 不能为空")
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	symbol, strategy, _ := strings.Cut(key, "@")
	now := s.now().Unix()
	model := liveStateModel{
		Key:           key,
		Symbol:        symbol,
		Strategy:      strategy,
		Slot:          st.Slot(),
		Balance:       st.Account.Balance,
		StateJSON:     datatypes.JSON(raw),
		LastBarTime:   st.LastBarTime,
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"slot", "balance", "state_json", "last_bar_time", "updated_at",
			}),
		}).
		Create(&model).Error
}

// LoadState 返回 key 对应的快照；不存在时 ok=false。
func (s *GormStore) LoadState(ctx context.Context, key string) (engine.State, bool, error) {
	var model liveStateModel
	err := s.db.WithContext(ctx).Where("state_key = ?", strings.TrimSpace(key)).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, false, nil
	}
	if err != nil {
		return engine.State{}, false, err
	}
	var st engine.State
	if err := json.Unmarshal(model.StateJSON, &st); err != nil {
		return engine.State{}, false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return st, true, nil
}

// AppendTrade 写入一笔平仓记录；重复 trade_id 会覆盖。
func (s *GormStore) AppendTrade(ctx context.Context, key string, t engine.ClosedTrade) error {
	details, err := json.Marshal(t)
	if err != nil {
		return err
	}
	model := liveTradeModel{
		TradeID:      t.ID,
		StateKey:     key,
		Kind:         t.Kind,
		Direction:    string(t.Direction),
		EntryTime:    t.EntryTime,
		ExitTime:     t.ExitTime,
		Entry:        t.Entry,
		Exit:         t.Exit,
		PnL:          t.PnL,
		Reason:       t.Reason,
		BalanceAfter: t.BalanceAfter,
		Details:      datatypes.JSON(details),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trade_id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

// ListTrades 按平仓时间升序返回 key 下的成交；limit<=0 表示全部。
func (s *GormStore) ListTrades(ctx context.Context, key string, limit int) ([]engine.ClosedTrade, error) {
	q := s.db.WithContext(ctx).Model(&liveTradeModel{}).Where("state_key = ?", key)
	var models []liveTradeModel
	if limit > 0 {
		// 取最近 limit 条再翻转成升序
		if err := q.Order("exit_time DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
			return nil, err
		}
		for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
			models[i], models[j] = models[j], models[i]
		}
	} else if err := q.Order("exit_time ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]engine.ClosedTrade, 0, len(models))
	for _, m := range models {
		var t engine.ClosedTrade
		if err := json.Unmarshal(m.Details, &t); err != nil {
			return nil, fmt.Errorf("decode trade %s: %w", m.TradeID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// AppendEvent 记录一次状态迁移。
func (s *GormStore) AppendEvent(ctx context.Context, key, kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	model := liveEventModel{
		StateKey:      key,
		Kind:          kind,
		Payload:       datatypes.JSON(raw),
		CreatedAtUnix: s.now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) ListEvents(ctx context.Context, key string, limit int) ([]Event, error) {
	q := s.db.WithContext(ctx).Where("state_key = ?", key).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []liveEventModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(models))
	for _, m := range models {
		out = append(out, Event{Kind: m.Kind, Payload: json.RawMessage(m.Payload), CreatedAt: m.CreatedAtUnix})
	}
	return out, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
