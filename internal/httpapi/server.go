// Package httpapi serves the read-only cluster API.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/blindspot/internal/globaltime"
	"horse.fit/blindspot/internal/store"
)

type Options struct {
	Host                  string
	Port                  int
	TrendingLookbackHours int
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	ShutdownTimeout       time.Duration
}

type Server struct {
	store  *store.Store
	logger zerolog.Logger
	opts   Options
}

func NewServer(st *store.Store, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	if opts.TrendingLookbackHours <= 0 {
		opts.TrendingLookbackHours = 48
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		store:  st,
		logger: logger,
		opts: Options{
			Host:                  host,
			Port:                  port,
			TrendingLookbackHours: opts.TrendingLookbackHours,
			ReadTimeout:           readTimeout,
			WriteTimeout:          writeTimeout,
			ShutdownTimeout:       shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/clusters", s.handleClusters)
	api.GET("/clusters/:cluster_id", s.handleClusterDetail)
	api.GET("/trending", s.handleTrending)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("blindspot api server started")
	if err := e.StartServer(httpServer); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	if he, ok := err.(*echo.HTTPError); ok {
		message := http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		}
		_ = fail(c, he.Code, message, nil)
		return
	}

	s.logger.Error().Err(err).Msg("unhandled http error")
	_ = internalError(c, "internal server error")
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]string{"service": "blindspot"})
}

func (s *Server) handleClusters(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	if limit > 200 {
		limit = 200
	}

	clusters, err := s.store.ListClusters(c.Request().Context(), limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("list clusters failed")
		return internalError(c, "failed to list clusters")
	}
	return success(c, map[string]any{
		"clusters": clusters,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleClusterDetail(c echo.Context) error {
	clusterID, err := strconv.ParseInt(c.Param("cluster_id"), 10, 64)
	if err != nil || clusterID <= 0 {
		return fail(c, http.StatusBadRequest, "cluster_id must be a positive integer", nil)
	}

	detail, found, err := s.store.GetClusterDetail(c.Request().Context(), clusterID)
	if err != nil {
		s.logger.Error().Err(err).Int64("cluster_id", clusterID).Msg("load cluster failed")
		return internalError(c, "failed to load cluster")
	}
	if !found {
		return failNotFound(c, "cluster not found")
	}
	return success(c, detail)
}

func (s *Server) handleTrending(c echo.Context) error {
	limit := queryInt(c, "limit", 10)
	if limit > 50 {
		limit = 50
	}
	cutoff := globaltime.UTC().Add(-time.Duration(s.opts.TrendingLookbackHours) * time.Hour)

	clusters, err := s.store.TrendingClusters(c.Request().Context(), cutoff, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list trending clusters failed")
		return internalError(c, "failed to list trending clusters")
	}
	return success(c, map[string]any{
		"clusters": clusters,
		"limit":    limit,
	})
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
