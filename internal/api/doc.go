// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between the worker fleet
// and the coordination core, translating HTTP concerns to business
// operations.
package api
