package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"consensusbot/src/model"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var ErrOrderRejected = errors.New("order rejected")

// spotAPI is the part of goex.API the bot needs.
type spotAPI interface {
	GetTicker(currency goex.CurrencyPair) (*goex.Ticker, error)
	MarketBuy(amount, price string, currency goex.CurrencyPair) (*goex.Order, error)
	MarketSell(amount, price string, currency goex.CurrencyPair) (*goex.Order, error)
}

// Binance prices symbols and places spot market orders. Every call waits on a shared limiter
// so that concurrent phases of a cycle stay under the exchange's request weight.
type Binance struct {
	logger  *logrus.Entry
	api     spotAPI
	limiter *rate.Limiter
}

func NewBinance(log *logrus.Entry, cfg Config) *Binance {
	endpoint := binance.GLOBAL_API_BASE_URL
	if cfg.UseBinanceTestnet {
		endpoint = BinanceTestnetBaseURL
	}

	apiConfig := &goex.APIConfig{
		HttpClient:   &http.Client{Timeout: 15 * time.Second},
		Endpoint:     endpoint,
		ApiKey:       cfg.BinanceAPIKey,
		ApiSecretKey: cfg.BinanceAPISecret,
	}

	rps := cfg.BinanceRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.BinanceBurst
	if burst <= 0 {
		burst = 1
	}

	b := NewBinanceWithAPI(log, binance.NewWithConfig(apiConfig), rate.NewLimiter(rate.Limit(rps), burst))
	b.logger.WithField("endpoint", endpoint).Info("binance connector ready")
	return b
}

// NewBinanceWithAPI is used by tests to inject a fake exchange.
func NewBinanceWithAPI(log *logrus.Entry, api spotAPI, limiter *rate.Limiter) *Binance {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Binance{
		logger:  log.WithField("connector", "binance"),
		api:     api,
		limiter: limiter,
	}
}

// ParsePair accepts BTC/USDT, BTC_USDT and BTC-USDT.
func ParsePair(symbol string) (goex.CurrencyPair, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '_' || r == '-' })
	if len(parts) != 2 {
		return goex.CurrencyPair{}, fmt.Errorf("unsupported symbol %q, expected BASE/QUOTE", symbol)
	}
	return goex.NewCurrencyPair(goex.Currency{Symbol: parts[0]}, goex.Currency{Symbol: parts[1]}), nil
}

// Price returns the last traded price of symbol.
func (b *Binance) Price(ctx context.Context, symbol string) (float64, error) {
	pair, err := ParsePair(symbol)
	if err != nil {
		return 0, err
	}
	return b.lastPrice(ctx, symbol, pair)
}

func (b *Binance) lastPrice(ctx context.Context, symbol string, pair goex.CurrencyPair) (float64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	ticker, err := b.api.GetTicker(pair)
	if err != nil {
		return 0, fmt.Errorf("get ticker %s: %w", symbol, err)
	}
	if ticker == nil || ticker.Last <= 0 {
		return 0, fmt.Errorf("get ticker %s: no last price", symbol)
	}
	return ticker.Last, nil
}

// ExecuteMarketOrder buys or sells notionalUSD worth of symbol at market. The quantity is derived
// from the last ticker price and truncated to 6 decimals.
func (b *Binance) ExecuteMarketOrder(ctx context.Context, symbol string, side model.Action, notionalUSD float64) (model.Fill, error) {
	if side != model.ActionBuy && side != model.ActionSell {
		return model.Fill{}, fmt.Errorf("market order side must be buy or sell, got %q", side)
	}
	if notionalUSD <= 0 {
		return model.Fill{}, fmt.Errorf("market order notional must be positive, got %v", notionalUSD)
	}

	pair, err := ParsePair(symbol)
	if err != nil {
		return model.Fill{}, err
	}
	last, err := b.lastPrice(ctx, symbol, pair)
	if err != nil {
		return model.Fill{}, err
	}

	qty := decimal.NewFromFloat(notionalUSD).Div(decimal.NewFromFloat(last)).Truncate(6)
	return b.placeMarket(ctx, symbol, pair, side, qty, last)
}

// ExecuteMarketQuantity buys or sells exactly quantity units of the base asset. Exits use it so
// that a position sells what its entry order bought.
func (b *Binance) ExecuteMarketQuantity(ctx context.Context, symbol string, side model.Action, quantity float64) (model.Fill, error) {
	if side != model.ActionBuy && side != model.ActionSell {
		return model.Fill{}, fmt.Errorf("market order side must be buy or sell, got %q", side)
	}
	if quantity <= 0 {
		return model.Fill{}, fmt.Errorf("market order quantity must be positive, got %v", quantity)
	}

	pair, err := ParsePair(symbol)
	if err != nil {
		return model.Fill{}, err
	}
	last, err := b.lastPrice(ctx, symbol, pair)
	if err != nil {
		return model.Fill{}, err
	}

	return b.placeMarket(ctx, symbol, pair, side, decimal.NewFromFloat(quantity).Truncate(6), last)
}

func (b *Binance) placeMarket(ctx context.Context, symbol string, pair goex.CurrencyPair, side model.Action, qty decimal.Decimal, last float64) (model.Fill, error) {
	if !qty.IsPositive() {
		return model.Fill{}, fmt.Errorf("market order %s: quantity rounds to zero at price %v", symbol, last)
	}
	price := decimal.NewFromFloat(last).String()

	if err := b.limiter.Wait(ctx); err != nil {
		return model.Fill{}, err
	}

	place := b.api.MarketBuy
	if side == model.ActionSell {
		place = b.api.MarketSell
	}
	order, err := place(qty.String(), price, pair)
	if err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"symbol": symbol,
			"side":   side,
			"qty":    qty.String(),
		}).Error("market order failed")
		return model.Fill{}, fmt.Errorf("%w: %s %s: %v", ErrOrderRejected, side, symbol, err)
	}

	fill := model.Fill{Price: last, Quantity: qty.InexactFloat64()}
	if order != nil {
		switch {
		case order.AvgPrice > 0:
			fill.Price = order.AvgPrice
		case order.Price > 0:
			fill.Price = order.Price
		}
		if order.DealAmount > 0 {
			fill.Quantity = order.DealAmount
		}
	}

	b.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"side":   side,
		"qty":    fill.Quantity,
		"fill":   fill.Price,
	}).Info("market order filled")

	return fill, nil
}
