// Package api exposes committed protocol state and the live notification
// stream over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NethermindEth/agent-protocol/api/handlers"
	"github.com/NethermindEth/agent-protocol/consensus/abci"
	"github.com/NethermindEth/agent-protocol/core"
)

// Querier answers ABCI queries against committed state.
type Querier interface {
	Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error)
}

type Server struct {
	querier  Querier
	hub      handlers.Subscriber
	gatherer prometheus.Gatherer
	logger   log.Logger
}

func NewServer(q Querier, hub handlers.Subscriber, gatherer prometheus.Gatherer, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{querier: q, hub: hub, gatherer: gatherer, logger: logger.With("module", "api")}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/agents", s.proxy(func(*gin.Context) string { return abci.QueryAgents }))
	r.GET("/agents/:owner", s.proxy(func(c *gin.Context) string { return abci.QueryAgent + c.Param("owner") }))
	r.GET("/jobs/:address", s.proxy(func(c *gin.Context) string { return abci.QueryJob + c.Param("address") }))
	r.GET("/ratings/:job", s.proxy(func(c *gin.Context) string { return abci.QueryRating + c.Param("job") }))
	r.GET("/balances/:address", s.proxy(func(c *gin.Context) string { return abci.QueryBalance + c.Param("address") }))
	r.GET("/nonces/:address", s.proxy(func(c *gin.Context) string { return abci.QueryNonce + c.Param("address") }))
	if s.hub != nil {
		r.GET("/events", handlers.HandleWebSocket(s.hub, s.logger))
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	return r
}

func (s *Server) proxy(path func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := path(c)
		res, err := s.querier.Query(c.Request.Context(), &abcitypes.RequestQuery{Path: p})
		if err != nil {
			s.logger.Error("query failed", "path", p, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if res.Code != abcitypes.CodeTypeOK {
			c.JSON(statusFor(res.Code), gin.H{"error": res.Log, "code": res.Code})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", json.RawMessage(res.Value))
	}
}

func statusFor(code uint32) int {
	switch kind := core.KindOf(code); {
	case errors.Is(kind, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, core.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Serve runs the HTTP server until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return errors.Wrap(err, "api server")
	case <-ctx.Done():
		if err := srv.Shutdown(context.Background()); err != nil {
			return errors.Wrap(err, "shutdown api server")
		}
		return nil
	}
}
