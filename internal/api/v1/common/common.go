package common

import "net/http"

// Route represents a route for the HTTP server
type Route struct {
	Path       string
	Method     string
	Handler    http.HandlerFunc
	Middleware []func(http.HandlerFunc) http.HandlerFunc
}
