package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"consensusbot/src/database"
	"consensusbot/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func sampleTrade(positionID uint, symbol string, pnl float64, closedAt time.Time) *model.Trade {
	result := model.TradeResultLoss
	if pnl > 0 {
		result = model.TradeResultWin
	}
	return &model.Trade{
		PositionID: positionID,
		Symbol:     symbol,
		Side:       model.SideLong,
		EntryPrice: 100,
		ExitPrice:  100 + pnl,
		PnlUSD:     pnl,
		PnlPct:     pnl,
		Result:     result,
		Reason:     model.CloseReasonTargetHit,
		OpenedAt:   closedAt.Add(-time.Minute),
		ClosedAt:   closedAt,
		Details: model.Position{
			ID:     positionID,
			Symbol: symbol,
			Votes:  []model.Vote{{Source: "GPT-5", Action: model.ActionBuy, Confidence: 0.8}},
		},
	}
}

func TestStore_TradesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newSQLiteDB(t))
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := sampleTrade(1, "BTC/USDT", 2, base)
	require.NoError(t, store.SaveTrade(ctx, first))
	require.NotZero(t, first.ID)

	require.NoError(t, store.SaveTrade(ctx, sampleTrade(2, "ETH/USDT", -3, base.Add(time.Minute))))
	require.NoError(t, store.SaveTrade(ctx, sampleTrade(3, "BTC/USDT", 0, base.Add(2*time.Minute))))

	n, err := store.CountTrades(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	latest, err := store.Trades.FindLatest(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.EqualValues(t, 3, latest[0].PositionID)
	assert.EqualValues(t, 2, latest[1].PositionID)

	btc, err := store.Trades.FindLatest(ctx, "BTC/USDT", 10)
	require.NoError(t, err)
	require.Len(t, btc, 2)
	require.Len(t, btc[1].Details.Votes, 1)
	assert.Equal(t, "GPT-5", btc[1].Details.Votes[0].Source)

	summary, err := store.Trades.Summary(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.Total)
	assert.EqualValues(t, 1, summary.Wins)
	assert.EqualValues(t, 2, summary.Losses)
	assert.InDelta(t, -1.0, summary.PnlUSD, 1e-9)
}

func TestStore_WeightsSeedAndUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newSQLiteDB(t))

	loaded, err := store.LoadWeights(ctx, []string{"GPT-5", "Grok"}, 1.0)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"GPT-5": 1.0, "Grok": 1.0}, loaded)

	require.NoError(t, store.SaveWeights(ctx, map[string]float64{"GPT-5": 1.7, "Falcon": 0.4}))

	// seeding again must not reset learned weights
	loaded, err = store.LoadWeights(ctx, []string{"GPT-5", "Grok", "Falcon"}, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 1.7, loaded["GPT-5"])
	assert.Equal(t, 1.0, loaded["Grok"])
	assert.Equal(t, 0.4, loaded["Falcon"])

	rows, err := store.Weights.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "GPT-5", rows[0].Source)
	assert.Equal(t, "Falcon", rows[2].Source)

	require.NoError(t, store.SaveWeights(ctx, nil))
}

func TestStore_HistoryOrdersAndExceptions(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newSQLiteDB(t))
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveHistory(ctx, []model.EngineHistory{
		{Source: "GPT-5", RecordedAt: at, TradeID: 1, PositionID: 1, Pnl: 2, Score: 1.2},
		{Source: "Grok", RecordedAt: at, TradeID: 1, PositionID: 1, Pnl: 2, Score: -1.2},
		{Source: "GPT-5", RecordedAt: at.Add(time.Minute), TradeID: 2, PositionID: 2, Pnl: -3, Score: 0.5},
	}))
	require.NoError(t, store.SaveHistory(ctx, nil))

	rows, err := store.History.FindBySource(ctx, "GPT-5", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 2, rows[0].TradeID)

	fill := 101.5
	require.NoError(t, store.SaveOrderExecution(ctx, &model.OrderExecutionLog{
		Symbol:      "BTC/USDT",
		Side:        model.SideLong,
		OrderDir:    model.OrderDirectionEntry,
		NotionalUSD: 100,
		FillPrice:   &fill,
		Status:      model.OrderExecutionStatusFilled,
		RequestedAt: at,
	}))
	logs, err := store.Orders.FindLatest(ctx, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].FillPrice)
	assert.Equal(t, 101.5, *logs[0].FillPrice)

	require.NoError(t, store.SaveException(ctx, &model.Exception{
		Service: "scheduler",
		Module:  "price_source",
		Method:  "Price",
		Message: "timeout",
		Level:   "warn",
	}))
	var count int64
	require.NoError(t, store.Exceptions.db.Model(&model.Exception{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestTradeRepository_FindLatestQueryShape(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTradeRepositoryWithDB(mockDB)

	closedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "position_id", "symbol", "side", "entry", "exit", "pnl_usd", "pnl_pct", "result", "closed_at"}).
		AddRow(7, 3, "BTC/USDT", "long", 100.0, 102.0, 2.0, 2.0, "win", closedAt)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trades" WHERE symbol = $1 ORDER BY closed_at DESC, id DESC LIMIT`)).
		WillReturnRows(rows)

	trades, err := repo.FindLatest(context.Background(), "BTC/USDT", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 || trades[0].ID != 7 || trades[0].ExitPrice != 102 {
		t.Fatalf("unexpected trades: %+v", trades)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNewMainStore_UsesMainDB(t *testing.T) {
	db := newSQLiteDB(t)
	prev := database.MainDB
	database.MainDB = db
	t.Cleanup(func() { database.MainDB = prev })

	ctx := context.Background()
	store := NewMainStore()
	require.NoError(t, store.SaveWeights(ctx, map[string]float64{"Grok": 1.1}))
	require.NoError(t, store.SaveException(ctx, &model.Exception{Service: "scheduler", Module: "sink", Method: "SaveTrade", Message: "boom", Level: "warn"}))

	rows, err := NewEngineWeightRepositoryWithDB(db).FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.1, rows[0].Weight)

	var excs int64
	require.NoError(t, db.Model(&model.Exception{}).Count(&excs).Error)
	assert.EqualValues(t, 1, excs)
}
