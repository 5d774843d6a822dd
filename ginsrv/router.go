// Package ginsrv builds the HTTP surface used to expose health and metrics.
package ginsrv

import "github.com/gin-gonic/gin"

type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// SetupRouter registers routes on a fresh engine. Middlewares run in the
// order they are given.
func SetupRouter(routes []Route, middlewares ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(middlewares...)

	for _, route := range routes {
		router.Handle(route.Method, route.Path, route.Handler)
	}

	return router
}
