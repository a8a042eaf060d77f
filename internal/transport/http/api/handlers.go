package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"alphaseeker/internal/analysis"
	"alphaseeker/internal/history"
	"alphaseeker/internal/pkg/maputil"
	"alphaseeker/internal/store/ledger"

	"github.com/gin-gonic/gin"
)

type handlers struct {
	engine  Analyzer
	history History
	traces  TraceReader
}

func (h *handlers) register(g *gin.RouterGroup) {
	g.GET("/health", h.health)
	g.POST("/analyze", h.analyze)
	g.POST("/challenge", h.challenge)
	g.POST("/react", h.react)
	g.GET("/history", h.listHistory)
	g.GET("/history/latest", h.latestHistory)
	g.GET("/tickers", h.tickers)
	g.POST("/save", h.save)
	if h.traces != nil {
		g.GET("/traces", h.listTraces)
	}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func (h *handlers) analyze(c *gin.Context) {
	var req analysis.AnalyzeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.engine.Analyze(c.Request.Context(), req)
	if err != nil {
		writeError(c, "analyze", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) challenge(c *gin.Context) {
	var req analysis.ChallengeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.engine.Challenge(c.Request.Context(), req)
	if err != nil {
		writeError(c, "challenge", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) react(c *gin.Context) {
	var req analysis.ReactRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.engine.React(c.Request.Context(), req)
	if err != nil {
		writeError(c, "react", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) listHistory(c *gin.Context) {
	recs, err := h.history.Load(c.Request.Context(), strings.TrimSpace(c.Query("ticker")))
	if err != nil {
		writeError(c, "history", err)
		return
	}
	if recs == nil {
		recs = []ledger.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

func (h *handlers) latestHistory(c *gin.Context) {
	ticker := strings.TrimSpace(c.Query("ticker"))
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "ticker is required"})
		return
	}
	rec, ok, err := h.history.Latest(c.Request.Context(), ticker)
	if err != nil {
		writeError(c, "history latest", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("no history for %s", ticker)})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) tickers(c *gin.Context) {
	list, err := h.history.Tickers(c.Request.Context())
	if err != nil {
		writeError(c, "tickers", err)
		return
	}
	if list == nil {
		list = []string{}
	}
	c.JSON(http.StatusOK, list)
}

// save stores a record supplied by the client, e.g. an edited analysis.
func (h *handlers) save(c *gin.Context) {
	var item map[string]any
	if !bindJSON(c, &item) {
		return
	}
	ticker := strings.TrimSpace(maputil.String(item, "ticker", ""))
	if ticker == "" {
		ticker = analysis.UnknownTicker
	}
	data := history.Normalize(maputil.Map(item, "data"), ticker)
	var price *float64
	if v, ok := maputil.Float(item, "price"); ok {
		price = &v
	}
	timestamp := strings.TrimSpace(maputil.String(item, "timestamp", ""))
	replace, _ := maputil.Value(item, "replace", false).(bool)

	var (
		rec ledger.Record
		err error
	)
	if replace {
		rec, err = h.history.Replace(c.Request.Context(), ticker, data, price, timestamp)
	} else {
		rec, err = h.history.Append(c.Request.Context(), ticker, data, price, timestamp)
	}
	if err != nil {
		writeError(c, "save", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved", "ticker": rec.Ticker, "timestamp": rec.Timestamp})
}

func (h *handlers) listTraces(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.traces.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, "traces", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
