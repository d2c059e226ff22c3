package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/overcast-systems/flywheel/client"
	"github.com/overcast-systems/flywheel/ratelimit"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type keyValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type setRequest struct {
	Value any   `json:"value"`
	TTLMs int64 `json:"ttlMs,omitempty"`
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	h := srv.client.HealthCheck(c.Request().Context())
	code := http.StatusOK
	if h.Status == client.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, h)
}

func (srv *Server) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, srv.client.Stats())
}

func (srv *Server) HandleGetKey(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	v, err := srv.client.Get(ctx, key)
	if err != nil {
		return err
	}
	if v == nil {
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "KeyNotFound",
			Message: fmt.Sprintf("no value at key %q", key),
		})
	}
	return c.JSON(http.StatusOK, keyValue{Key: key, Value: v})
}

func (srv *Server) HandleSetKey(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	var req setRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Value == nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "MissingValue",
			Message: "request body needs a non-null 'value' field",
		})
	}

	ttl := time.Duration(req.TTLMs) * time.Millisecond
	if err := srv.client.Set(ctx, key, req.Value, ttl); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keyValue{Key: key, Value: req.Value})
}

func (srv *Server) HandleDeleteKey(c echo.Context) error {
	if err := srv.client.Del(c.Request().Context(), c.Param("key")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, GenericStatus{Daemon: "flywheeld", Status: "ok"})
}

func (srv *Server) HandleIncrKey(c echo.Context) error {
	key := c.Param("key")
	n, err := srv.client.Incr(c.Request().Context(), key)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keyValue{Key: key, Value: n})
}

func (srv *Server) HandleHashGet(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")
	field := c.Param("field")

	v, err := srv.client.HGet(ctx, key, field)
	if err != nil {
		return err
	}
	if v == nil {
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "FieldNotFound",
			Message: fmt.Sprintf("no value at %q field %q", key, field),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"key": key, "field": field, "value": v})
}

func (srv *Server) HandleHashSet(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")
	field := c.Param("field")

	var req setRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Value == nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "MissingValue",
			Message: "request body needs a non-null 'value' field",
		})
	}
	if err := srv.client.HSet(ctx, key, field, req.Value); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"key": key, "field": field, "value": req.Value})
}

func (srv *Server) HandleQueuePush(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	var req setRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Value == nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "MissingValue",
			Message: "request body needs a non-null 'value' field",
		})
	}
	n, err := srv.client.LPush(ctx, key, req.Value)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"key": key, "length": n})
}

func (srv *Server) HandleQueuePop(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	v, err := srv.client.RPop(ctx, key)
	if err != nil {
		return err
	}
	if v == nil {
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "QueueEmpty",
			Message: fmt.Sprintf("queue %q has no entries", key),
		})
	}
	return c.JSON(http.StatusOK, keyValue{Key: key, Value: v})
}

func (srv *Server) HandleCacheGet(c echo.Context) error {
	key := c.Param("key")
	v, err := srv.cache.Get(c.Request().Context(), key)
	if err != nil {
		return err
	}
	if v == nil {
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "CacheMiss",
			Message: fmt.Sprintf("nothing cached at %q", key),
		})
	}
	return c.JSON(http.StatusOK, keyValue{Key: key, Value: v})
}

func (srv *Server) HandleCacheSet(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	var req setRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Value == nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "MissingValue",
			Message: "request body needs a non-null 'value' field",
		})
	}

	var err error
	if req.TTLMs > 0 {
		err = srv.cache.SetTTL(ctx, key, req.Value, time.Duration(req.TTLMs)*time.Millisecond)
	} else {
		err = srv.cache.Set(ctx, key, req.Value)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keyValue{Key: key, Value: req.Value})
}

func (srv *Server) HandleCacheDelete(c echo.Context) error {
	if err := srv.cache.Del(c.Request().Context(), c.Param("key")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, GenericStatus{Daemon: "flywheeld", Status: "ok"})
}

type sessionRequest struct {
	Data  any   `json:"data"`
	TTLMs int64 `json:"ttlMs,omitempty"`
}

func (srv *Server) HandleSessionGet(c echo.Context) error {
	id := c.Param("id")
	data, err := srv.sessions.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if data == nil {
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "SessionNotFound",
			Message: fmt.Sprintf("no session %q", id),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "data": data})
}

func (srv *Server) HandleSessionSet(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Data == nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "MissingData",
			Message: "request body needs a non-null 'data' field",
		})
	}

	var err error
	if req.TTLMs > 0 {
		err = srv.sessions.SetTTL(ctx, id, req.Data, time.Duration(req.TTLMs)*time.Millisecond)
	} else {
		err = srv.sessions.Set(ctx, id, req.Data)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "data": req.Data})
}

func (srv *Server) HandleSessionDelete(c echo.Context) error {
	if err := srv.sessions.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, GenericStatus{Daemon: "flywheeld", Status: "ok"})
}

func (srv *Server) HandleSessionExtend(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var ok bool
	var err error
	if ttlStr := c.QueryParam("ttlMs"); ttlStr != "" {
		ttlMs, perr := strconv.ParseInt(ttlStr, 10, 64)
		if perr != nil || ttlMs <= 0 {
			return c.JSON(http.StatusBadRequest, GenericError{
				Error:   "InvalidTTL",
				Message: "ttlMs must be a positive integer",
			})
		}
		ok, err = srv.sessions.ExtendTTL(ctx, id, time.Duration(ttlMs)*time.Millisecond)
	} else {
		ok, err = srv.sessions.Extend(ctx, id)
	}
	if err != nil {
		return err
	}
	if !ok {
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "SessionNotFound",
			Message: fmt.Sprintf("no session %q", id),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "extended": true})
}

func (srv *Server) HandleRateLimitCheck(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	lim := srv.limiter
	if windowStr, maxStr := c.QueryParam("windowMs"), c.QueryParam("max"); windowStr != "" || maxStr != "" {
		windowMs, err := strconv.ParseInt(windowStr, 10, 64)
		if err != nil || windowMs <= 0 {
			return c.JSON(http.StatusBadRequest, GenericError{
				Error:   "InvalidWindow",
				Message: "windowMs must be a positive integer",
			})
		}
		max, err := strconv.ParseInt(maxStr, 10, 64)
		if err != nil || max <= 0 {
			return c.JSON(http.StatusBadRequest, GenericError{
				Error:   "InvalidMax",
				Message: "max must be a positive integer",
			})
		}
		lim = ratelimit.New(srv.client, time.Duration(windowMs)*time.Millisecond, max)
	}

	res, err := lim.Check(ctx, key)
	if err != nil {
		return err
	}
	code := http.StatusOK
	if res.Exceeded {
		code = http.StatusTooManyRequests
	}
	return c.JSON(code, res)
}

func (srv *Server) HandlePublish(c echo.Context) error {
	ctx := c.Request().Context()
	channel := c.Param("channel")

	var payload any
	if err := c.Bind(&payload); err != nil {
		return err
	}
	if payload == nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "MissingPayload",
			Message: "request body needs a JSON payload",
		})
	}

	n, err := srv.client.Publish(ctx, channel, payload)
	if err != nil {
		return err
	}
	publishedMessages.Inc()
	return c.JSON(http.StatusOK, map[string]any{"channel": channel, "receivers": n})
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		slog.Warn("flywheeld-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "flywheeld", Message: errorMessage})
}
