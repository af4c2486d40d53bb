package backtest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"scalper/internal/market"

	_ "modernc.org/sqlite"
)

const (
	defaultQueryLimit = 200
	maxQueryLimit     = 2000
)

// Manifest 记录某个 symbol@timeframe 缓存文件的统计信息。
type Manifest struct {
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

// Gap 是一段缺失的开盘时间区间（闭区间）。
type Gap struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// IntegrityReport 描述本地缓存相对周期网格的完整度。
type IntegrityReport struct {
	Expected int64 `json:"expected"`
	Present  int64 `json:"present"`
	Gaps     []Gap `json:"gaps"`
}

func (r IntegrityReport) Complete() bool { return len(r.Gaps) == 0 }

var seriesSchema = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		open_time   INTEGER PRIMARY KEY,
		close_time  INTEGER NOT NULL,
		open        REAL NOT NULL,
		high        REAL NOT NULL,
		low         REAL NOT NULL,
		close       REAL NOT NULL,
		volume      REAL NOT NULL,
		trades      INTEGER DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS sync_meta (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL
	)`,
}

const candleColumns = `open_time, close_time, open, high, low, close, volume, trades`

const upsertCandle = `INSERT INTO candles (` + candleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(open_time) DO UPDATE SET close_time=excluded.close_time, open=excluded.open,
high=excluded.high, low=excluded.low, close=excluded.close, volume=excluded.volume, trades=excluded.trades`

// series 是单个 symbol@timeframe 的 sqlite 文件。
type series struct {
	db     *sql.DB
	path   string
	symbol string
	tf     string
}

// Store 为每个 symbol@timeframe 维护一个 sqlite 文件作为 K 线缓存，
// 布局为 {root}/{SYMBOL}/{tf}.db。
type Store struct {
	root string

	mu     sync.Mutex
	opened map[string]*series
}

func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("data root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, opened: make(map[string]*series)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for key, ser := range s.opened {
		errs = append(errs, ser.db.Close())
		delete(s.opened, key)
	}
	return errors.Join(errs...)
}

func (s *Store) series(symbol, timeframe string) (*series, error) {
	symbol, timeframe = strings.ToUpper(strings.TrimSpace(symbol)), strings.ToLower(strings.TrimSpace(timeframe))
	if symbol == "" || timeframe == "" {
		return nil, errors.New("symbol/timeframe 不能为空")
	}
	key := symbol + "@" + timeframe

	s.mu.Lock()
	defer s.mu.Unlock()
	if ser, ok := s.opened[key]; ok {
		return ser, nil
	}
	path := filepath.Join(s.root, symbol, timeframe+".db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range seriesSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init %s: %w", key, err)
		}
	}
	ser := &series{db: db, path: path, symbol: symbol, tf: timeframe}
	s.opened[key] = ser
	return ser, nil
}

// InsertCandles 批量写入 K 线，重复 open_time 覆盖旧值。
func (s *Store) InsertCandles(ctx context.Context, symbol, timeframe string, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	ser, err := s.series(symbol, timeframe)
	if err != nil {
		return 0, err
	}
	tx, err := ser.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck
	stmt, err := tx.PrepareContext(ctx, upsertCandle)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades); err != nil {
			return 0, fmt.Errorf("写入 %d: %w", c.OpenTime, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO sync_meta (k, v) VALUES ('last_sync_at', ?)
		ON CONFLICT(k) DO UPDATE SET v=excluded.v`, fmt.Sprint(time.Now().UnixMilli())); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(candles), nil
}

// LoadOpenTimes 返回 [start,end] 内已有的 open_time（升序）。
func (s *Store) LoadOpenTimes(ctx context.Context, symbol, timeframe string, start, end int64) ([]int64, error) {
	ser, err := s.series(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	rows, err := ser.db.QueryContext(ctx, `SELECT open_time FROM candles WHERE open_time BETWEEN ? AND ? ORDER BY open_time`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// CheckIntegrity 对比 [start,end] 的周期网格与本地已有 K 线，返回缺口。
func (s *Store) CheckIntegrity(ctx context.Context, symbol string, tf market.Timeframe, start, end int64) (IntegrityReport, error) {
	start, end = tf.AlignRange(start, end)
	rep := IntegrityReport{Expected: tf.ExpectedCandles(start, end)}
	if rep.Expected == 0 {
		return rep, nil
	}
	have, err := s.LoadOpenTimes(ctx, symbol, tf.Key, start, end)
	if err != nil {
		return rep, err
	}
	rep.Gaps = gridGaps(start, end, tf.Millis(), have)
	rep.Present = int64(len(have))
	return rep, nil
}

// gridGaps 以双指针比对网格与已排序的 open_time，偏离网格的时间忽略。
func gridGaps(start, end, step int64, have []int64) []Gap {
	var gaps []Gap
	i := 0
	for ts := start; ts <= end; ts += step {
		for i < len(have) && have[i] < ts {
			i++
		}
		if i < len(have) && have[i] == ts {
			continue
		}
		if n := len(gaps); n > 0 && gaps[n-1].To == ts-step {
			gaps[n-1].To = ts
			continue
		}
		gaps = append(gaps, Gap{From: ts, To: ts})
	}
	return gaps
}

// Manifest 汇总缓存文件的行数、覆盖区间与最近同步时间。
func (s *Store) Manifest(ctx context.Context, symbol, timeframe string) (Manifest, error) {
	ser, err := s.series(symbol, timeframe)
	if err != nil {
		return Manifest{}, err
	}
	m := Manifest{Symbol: ser.symbol, Timeframe: ser.tf, Path: ser.path}
	row := ser.db.QueryRowContext(ctx, `SELECT COALESCE(MIN(open_time),0), COALESCE(MAX(open_time),0), COUNT(1) FROM candles`)
	if err := row.Scan(&m.MinTime, &m.MaxTime, &m.Rows); err != nil {
		return Manifest{}, err
	}
	var last string
	err = ser.db.QueryRowContext(ctx, `SELECT v FROM sync_meta WHERE k='last_sync_at'`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Manifest{}, err
	default:
		_, _ = fmt.Sscan(last, &m.LastSyncAt)
	}
	return m, nil
}

// QueryCandles 读取 K 线并按 open_time 升序返回；未给 start 时取靠近 end（或最新）的 limit 根。
func (s *Store) QueryCandles(ctx context.Context, symbol, timeframe string, start, end int64, limit int) ([]market.Candle, error) {
	ser, err := s.series(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultQueryLimit
	case limit > maxQueryLimit:
		limit = maxQueryLimit
	}
	if start > 0 && end > 0 && end < start {
		start, end = end, start
	}
	var (
		where []string
		args  []any
	)
	if start > 0 {
		where = append(where, "open_time >= ?")
		args = append(args, start)
	}
	if end > 0 {
		where = append(where, "open_time <= ?")
		args = append(args, end)
	}
	tail := start <= 0
	q := "SELECT " + candleColumns + " FROM candles"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if tail {
		q += " ORDER BY open_time DESC LIMIT ?"
	} else {
		q += " ORDER BY open_time ASC LIMIT ?"
	}
	rows, err := ser.db.QueryContext(ctx, q, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	list, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	if tail {
		slices.Reverse(list)
	}
	return list, nil
}

// RangeCandles 返回开盘时间落在 [start,end] 的全部 K 线。
func (s *Store) RangeCandles(ctx context.Context, symbol, timeframe string, start, end int64) (market.Candles, error) {
	if start <= 0 || end <= 0 {
		return nil, errors.New("start/end 需 > 0")
	}
	if end < start {
		start, end = end, start
	}
	ser, err := s.series(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	rows, err := ser.db.QueryContext(ctx, "SELECT "+candleColumns+" FROM candles WHERE open_time BETWEEN ? AND ? ORDER BY open_time", start, end)
	if err != nil {
		return nil, err
	}
	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]market.Candle, error) {
	defer rows.Close()
	var list []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Trades); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
