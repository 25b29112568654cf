package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pairarb/kernel"
	"pairarb/logger"
	"pairarb/manager"
)

// Server HTTP API server
type Server struct {
	router      *gin.Engine
	pairManager *manager.TradingPairManager
	httpServer  *http.Server
	instanceID  string
	startedAt   time.Time
	port        int
}

// NewServer creates the API server
func NewServer(pairManager *manager.TradingPairManager, port int) *Server {
	// Set to Release mode (reduce log output)
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()

	// Enable CORS
	router.Use(corsMiddleware())

	s := &Server{
		router:      router,
		pairManager: pairManager,
		instanceID:  uuid.New().String(),
		startedAt:   time.Now(),
		port:        port,
	}

	s.setupRoutes()

	return s
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.Any("/health", s.handleHealth)

		api.GET("/pairs", s.handleListPairs)
		api.POST("/pairs", s.handleAddPair)
		api.DELETE("/pairs/:leg1/:leg2", s.handleRemovePair)
		api.GET("/pairs/:leg1/:leg2/positions", s.handlePairPositions)

		api.GET("/aggregate", s.handleAggregate)
		api.GET("/baseline", s.handleBaseline)
	}
}

// handleHealth Health check
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"instance_id": s.instanceID,
		"uptime_sec":  int(time.Since(s.startedAt).Seconds()),
	})
}

type pairView struct {
	PairKey        string  `json:"pair_key"`
	Leg1           string  `json:"leg1"`
	Leg2           string  `json:"leg2"`
	PairType       string  `json:"pair_type"`
	MarketState    string  `json:"market_state"`
	ShortSpread    float64 `json:"short_spread"`
	LongSpread     float64 `json:"long_spread"`
	OpenPositions  int     `json:"open_positions"`
	PendingRemoval bool    `json:"pending_removal"`
	HasValidPrices bool    `json:"has_valid_prices"`
}

func toPairView(p *kernel.TradingPair) pairView {
	state, _ := p.Evaluate()
	view := pairView{
		PairKey:        p.Key(),
		Leg1:           p.Leg1Symbol,
		Leg2:           p.Leg2Symbol,
		PairType:       p.PairType,
		MarketState:    state.String(),
		PendingRemoval: p.IsPendingRemoval,
		HasValidPrices: p.HasValidPrices(),
	}
	if view.HasValidPrices {
		view.ShortSpread = p.ShortSpread()
		view.LongSpread = p.LongSpread()
	}
	for _, pos := range p.Positions {
		if pos.Leg1Quantity != 0 || pos.Leg2Quantity != 0 {
			view.OpenPositions++
		}
	}
	return view
}

func (s *Server) handleListPairs(c *gin.Context) {
	pairs := s.pairManager.Pairs()
	views := make([]pairView, 0, len(pairs))
	for _, p := range pairs {
		views = append(views, toPairView(p))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].PairKey < views[j].PairKey })

	c.JSON(http.StatusOK, gin.H{"pairs": views, "count": len(views)})
}

func (s *Server) handleAddPair(c *gin.Context) {
	var req struct {
		Leg1     string `json:"leg1" binding:"required"`
		Leg2     string `json:"leg2" binding:"required"`
		PairType string `json:"pair_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := s.pairManager.AddPair(req.Leg1, req.Leg2, req.PairType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toPairView(pair))
}

func (s *Server) handleRemovePair(c *gin.Context) {
	leg1 := c.Param("leg1")
	leg2 := c.Param("leg2")

	if !s.pairManager.RemovePair(leg1, leg2) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("pair %s/%s not found", leg1, leg2)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePairPositions(c *gin.Context) {
	leg1 := c.Param("leg1")
	leg2 := c.Param("leg2")

	pair, ok := s.pairManager.GetPair(leg1, leg2)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("pair %s/%s not found", leg1, leg2)})
		return
	}

	type positionView struct {
		Tag          string  `json:"tag"`
		Leg1Quantity float64 `json:"leg1_quantity"`
		Leg2Quantity float64 `json:"leg2_quantity"`
		Leg1AvgCost  float64 `json:"leg1_avg_cost"`
		Leg2AvgCost  float64 `json:"leg2_avg_cost"`
		Invested     bool    `json:"invested"`
	}

	views := make([]positionView, 0, len(pair.Positions))
	for tag, pos := range pair.Positions {
		views = append(views, positionView{
			Tag:          tag,
			Leg1Quantity: pos.Leg1Quantity,
			Leg2Quantity: pos.Leg2Quantity,
			Leg1AvgCost:  pos.Leg1AverageCost,
			Leg2AvgCost:  pos.Leg2AverageCost,
			Invested:     pos.Invested(),
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Tag < views[j].Tag })

	c.JSON(http.StatusOK, gin.H{"pair_key": pair.Key(), "positions": views})
}

func (s *Server) handleAggregate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"aggregate": s.pairManager.AggregateGridPositions()})
}

func (s *Server) handleBaseline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"baseline": s.pairManager.Baseline()})
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	logger.Infof("🌐 API server starting at http://localhost%s", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
