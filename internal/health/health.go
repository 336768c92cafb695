// SPDX-License-Identifier: MIT

// Package health provides liveness and readiness checks for production
// deployments, with per-component status for Docker HEALTHCHECK and
// Kubernetes probes.
package health

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/canaryops/sentinel/internal/verify"
)

// Status represents the overall health/readiness status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the full health/readiness response body.
type Response struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager runs registered checkers and aggregates their status.
type Manager struct {
	version  string
	checkers []Checker
}

// NewManager creates a health check manager.
func NewManager(version string) *Manager {
	return &Manager{version: version}
}

// RegisterChecker adds a health checker to the manager.
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health performs a liveness check: the process is alive, component detail
// is informational and never flips liveness itself.
func (m *Manager) Health(ctx context.Context) Response {
	resp := Response{
		Status:    StatusHealthy,
		Ready:     true,
		Version:   m.version,
		Timestamp: time.Now(),
	}
	m.runChecks(ctx, &resp)
	resp.Ready = true
	return resp
}

// Ready performs a readiness check: any unhealthy component makes the
// instance not ready to serve traffic.
func (m *Manager) Ready(ctx context.Context) Response {
	resp := Response{
		Status:    StatusHealthy,
		Ready:     true,
		Version:   m.version,
		Timestamp: time.Now(),
	}
	m.runChecks(ctx, &resp)
	if resp.Status == StatusUnhealthy {
		resp.Ready = false
	}
	return resp
}

func (m *Manager) runChecks(ctx context.Context, resp *Response) {
	if len(m.checkers) == 0 {
		return
	}
	resp.Checks = make(map[string]CheckResult, len(m.checkers))
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		resp.Checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case StatusDegraded:
			if resp.Status != StatusUnhealthy {
				resp.Status = StatusDegraded
			}
		}
	}
}

// FileChecker checks that a required state file exists and is non-empty.
type FileChecker struct {
	name string
	path string
}

// NewFileChecker creates a checker for state file presence.
func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

func (c *FileChecker) Name() string { return c.name }

func (c *FileChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "file not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	}
	if info.Size() == 0 {
		return CheckResult{Status: StatusDegraded, Message: "file is empty"}
	}
	return CheckResult{Status: StatusHealthy, Message: "file exists and readable"}
}

// LastVerifyChecker reports on the freshness and outcome of the background
// verification loop.
type LastVerifyChecker struct {
	last     func() (verify.Result, bool)
	maxAge   time.Duration
	checkNow func() time.Time
}

// NewLastVerifyChecker creates a checker over the worker's last result.
func NewLastVerifyChecker(last func() (verify.Result, bool), maxAge time.Duration) *LastVerifyChecker {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LastVerifyChecker{last: last, maxAge: maxAge, checkNow: time.Now}
}

func (c *LastVerifyChecker) Name() string { return "last_verification" }

func (c *LastVerifyChecker) Check(_ context.Context) CheckResult {
	res, ok := c.last()
	if !ok {
		return CheckResult{Status: StatusDegraded, Message: "no verification cycle completed yet"}
	}
	if age := c.checkNow().Sub(res.CheckedAt); age > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last verification %s ago", age.Round(time.Second)),
		}
	}
	if res.Status.Fatal() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   res.Err,
			Message: fmt.Sprintf("last verification status %s", res.Status),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("last verification status %s", res.Status)}
}
