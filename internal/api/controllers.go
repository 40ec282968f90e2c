package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxTradeLimit = 1000

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func (s *Server) health(c *gin.Context) {
	h := s.Service.Health()
	status := http.StatusOK
	if h.Status != "running" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Service.Stats())
}

func (s *Server) positions(c *gin.Context) {
	positions := s.Service.Positions()
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) markets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"markets": s.Service.Markets()})
}

func (s *Server) trades(c *gin.Context) {
	if s.Trades == nil {
		respondError(c, http.StatusNotFound, "JOURNAL_DISABLED", "trade journal is not enabled")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxTradeLimit {
			respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 1000")
			return
		}
		limit = v
	}
	symbol := c.Query("symbol")

	trades, err := s.Trades.TradeHistory(c.Request.Context(), symbol, limit)
	if err != nil {
		s.Log.Error("trade history query failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "trade history unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"count":  len(trades),
	})
}
