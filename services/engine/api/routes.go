// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the engine routes under rg.
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	engine := rg.Group("/engine")
	{
		engine.POST("/evaluate", handlers.HandleEvaluate)
		engine.POST("/scan", handlers.HandleScan)
		engine.GET("/health", handlers.HandleHealth)
	}
}

// NewRouter builds the gin engine with recovery, tracing, any extra
// middleware, the /v1 routes and, when metrics is non-nil, GET /metrics.
func NewRouter(serviceName string, handlers *Handlers, metrics http.Handler, middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware...)

	RegisterRoutes(router.Group("/v1"), handlers)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}
