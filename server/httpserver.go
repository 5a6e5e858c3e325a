// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cubefs/metadht/metrics"
)

const (
	defaultShutdownTimeoutS      = 10
	defaultReadRequestTimeoutS   = 30
	defaultWriteResponseTimeoutS = 30
)

type HttpServer struct {
	httpServer *http.Server

	*Server
}

func NewHttpServer(server *Server) *HttpServer {
	return &HttpServer{Server: server}
}

func (h *HttpServer) Serve(addr string) {
	ph := profile.NewProfileHandler(addr)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      rpc.MiddlewareHandlerWith(h.newHandler(), ph),
		ReadTimeout:  defaultReadRequestTimeoutS * time.Second,
		WriteTimeout: defaultWriteResponseTimeoutS * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server exits:", err)
		}
	}()
	h.httpServer = httpServer

	log.Info("http server is running at:", addr)
}

func (h *HttpServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeoutS*time.Second)
	defer cancel()

	h.httpServer.Shutdown(ctx)
}

func (h *HttpServer) newHandler() *rpc.Router {
	r := rpc.New()
	r.Handle(http.MethodGet, "/stats", h.Stats)
	r.Handle(http.MethodGet, "/layout", h.GetLayout)
	r.Handle(http.MethodGet, "/subvol/:name", h.GetSubvol, rpc.OptArgsURI())
	r.Handle(http.MethodPost, "/subvol/:name/limit", h.SetSubvolLimit, rpc.OptArgsURI(), rpc.OptArgsQuery())
	metricsHandler := promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
	r.Handle(http.MethodGet, "/metrics", func(c *rpc.Context) {
		metricsHandler.ServeHTTP(c.Writer, c.Request)
	})
	return r
}

type subvolArgs struct {
	Name        string `json:"name"`
	Concurrency uint32 `json:"concurrency"`
}

func (h *HttpServer) Stats(c *rpc.Context) {
	c.RespondJSON(h.Server.Status(c.Request.Context()))
}

func (h *HttpServer) GetSubvol(c *rpc.Context) {
	args := new(subvolArgs)
	if err := c.ParseArgs(args); err != nil {
		c.RespondError(err)
		return
	}
	st, err := h.Server.Child(c.Request.Context(), args.Name)
	if err != nil {
		c.RespondStatus(http.StatusNotFound)
		return
	}
	c.RespondJSON(st)
}

func (h *HttpServer) SetSubvolLimit(c *rpc.Context) {
	args := new(subvolArgs)
	if err := c.ParseArgs(args); err != nil {
		c.RespondError(err)
		return
	}
	if err := h.Server.SetChildConcurrency(c.Request.Context(), args.Name, args.Concurrency); err != nil {
		c.RespondStatus(http.StatusNotFound)
		return
	}
	c.Respond()
}

func (h *HttpServer) GetLayout(c *rpc.Context) {
	layout := h.Server.Layout()
	if layout == nil {
		c.RespondStatus(http.StatusNotFound)
		return
	}
	c.RespondJSON(layout)
}
