/*
 * Copyright (c) 2025, FleetForge Software (https://fleetforge.io).
 *
 * FleetForge Software licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package api assembles the local ingest HTTP surface: middleware chain,
// routes, and their handlers.
package api

import (
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleetforge/telemetry-agent/pkg/api/handlers"
	"github.com/fleetforge/telemetry-agent/pkg/api/middleware"
)

// NewRouter builds the Gin engine with the full middleware chain and all
// routes registered. authToken guards everything except /health when set.
func NewRouter(server *handlers.Server, authToken string, logger *zap.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// CorrelationIDMiddleware must run first so the correlation ID is
	// available to every later middleware and handler
	router.Use(middleware.CorrelationIDMiddleware(logger))
	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(gin.Recovery())

	// Liveness stays reachable without credentials
	router.GET("/health", server.HealthCheck)

	authed := router.Group("/", middleware.TokenAuthMiddleware(authToken, logger))
	authed.POST("/telemetry", server.Ingest)
	authed.GET("/status", server.Status)
	authed.GET("/fleet/positions", server.ListPositions)
	authed.GET("/fleet/positions/:deviceId", server.GetPosition)

	return router
}
