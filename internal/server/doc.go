// Package server implements the relay core for the chat service.
//
// The Hub owns all shared connection state; clients, authentication, routing,
// admin provisioning, and HTTP wiring live in specialized files to keep the
// codebase maintainable and testable as the project grows.
package server
