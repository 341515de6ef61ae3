// Package api exposes the market's read side over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"marketScope/internal/book"
	"marketScope/internal/model"
)

// Market is the read surface the handlers need from the sync engine.
type Market interface {
	BaseMint() solana.PublicKey
	QuoteMint() solana.PublicKey
	Decimals() (uint8, uint8)
	BidCount() int
	AskCount() int
	DepthBids() ([]book.Level, error)
	DepthAsks() ([]book.Level, error)
	OpenOffersByOwner(owner solana.PublicKey, side model.Side) []model.Offer
	NextUnusedSeed(owner solana.PublicKey, side model.Side) (uint16, error)
}

// TradeReader serves historical trades; nil disables the trades route.
type TradeReader interface {
	RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error)
}

// Server serves the market API and the prometheus endpoint.
type Server struct {
	echo   *echo.Echo
	market Market
	trades TradeReader
	logger *zap.Logger
}

// New wires routes onto a fresh echo instance.
func New(market Market, trades TradeReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, market: market, trades: trades, logger: logger}

	e.GET("/v1/market", s.getMarket)
	e.GET("/v1/depth/bids", s.getDepthBids)
	e.GET("/v1/depth/asks", s.getDepthAsks)
	e.GET("/v1/orders/:owner", s.getOrders)
	e.GET("/v1/orders/:owner/next-seed", s.getNextSeed)
	if trades != nil {
		e.GET("/v1/trades", s.getTrades)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close shuts the listener down immediately.
func (s *Server) Close() error {
	return s.echo.Close()
}

type marketResponse struct {
	BaseMint      string `json:"base_mint"`
	QuoteMint     string `json:"quote_mint"`
	BaseDecimals  uint8  `json:"base_decimals"`
	QuoteDecimals uint8  `json:"quote_decimals"`
	BidCount      int    `json:"bid_count"`
	AskCount      int    `json:"ask_count"`
}

func (s *Server) getMarket(c echo.Context) error {
	baseDecimals, quoteDecimals := s.market.Decimals()
	return c.JSON(http.StatusOK, marketResponse{
		BaseMint:      s.market.BaseMint().String(),
		QuoteMint:     s.market.QuoteMint().String(),
		BaseDecimals:  baseDecimals,
		QuoteDecimals: quoteDecimals,
		BidCount:      s.market.BidCount(),
		AskCount:      s.market.AskCount(),
	})
}

type depthResponse struct {
	Side   model.Side   `json:"side"`
	Levels []book.Level `json:"levels"`
}

func (s *Server) getDepthBids(c echo.Context) error {
	return s.depth(c, model.SideBid, s.market.DepthBids)
}

func (s *Server) getDepthAsks(c echo.Context) error {
	return s.depth(c, model.SideAsk, s.market.DepthAsks)
}

func (s *Server) depth(c echo.Context, side model.Side, fetch func() ([]book.Level, error)) error {
	levels, err := fetch()
	if err != nil {
		var desync book.DesyncError
		if errors.As(err, &desync) {
			s.logger.Error("depth request hit desynchronized book", zap.Error(err))
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, depthResponse{Side: side, Levels: levels})
}

type ordersResponse struct {
	Owner  string        `json:"owner"`
	Orders []model.Offer `json:"orders"`
}

func (s *Server) getOrders(c echo.Context) error {
	owner, err := solana.PublicKeyFromBase58(c.Param("owner"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid owner address")
	}
	side, err := sideParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ordersResponse{
		Owner:  owner.String(),
		Orders: s.market.OpenOffersByOwner(owner, side),
	})
}

type nextSeedResponse struct {
	Owner string     `json:"owner"`
	Side  model.Side `json:"side"`
	Seed  uint16     `json:"seed"`
}

func (s *Server) getNextSeed(c echo.Context) error {
	owner, err := solana.PublicKeyFromBase58(c.Param("owner"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid owner address")
	}
	side, err := sideParam(c)
	if err != nil {
		return err
	}
	if side == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "side query parameter is required")
	}

	seed, err := s.market.NextUnusedSeed(owner, side)
	if err != nil {
		var exhausted book.AllSeedsExhaustedError
		if errors.As(err, &exhausted) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, nextSeedResponse{Owner: owner.String(), Side: side, Seed: seed})
}

func (s *Server) getTrades(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be in [1, 1000]")
		}
		limit = parsed
	}

	trades, err := s.trades.RecentTrades(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, trades)
}

func sideParam(c echo.Context) (model.Side, error) {
	switch side := c.QueryParam("side"); side {
	case "":
		return "", nil
	case string(model.SideBid):
		return model.SideBid, nil
	case string(model.SideAsk):
		return model.SideAsk, nil
	default:
		return "", echo.NewHTTPError(http.StatusBadRequest, "side must be bid or ask")
	}
}
