package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"chat-risk-analysis/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	Critical    bool      `json:"critical"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func(ctx context.Context) (Status, string, error)

type registered struct {
	check    Check
	critical bool
}

// Checker manages health checks for the system
type Checker struct {
	checks      map[string]registered
	components  map[string]*Component
	checkPeriod time.Duration
	timeout     time.Duration
	onUpdate    []func(healthy bool)
	mutex       sync.RWMutex
	log         *logger.Logger
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	return &Checker{
		checks:      make(map[string]registered),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		timeout:     5 * time.Second,
		log:         log.WithComponent("health"),
	}
}

// RegisterCheck registers a new health check. A critical component that is
// down makes the whole service unhealthy.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = registered{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
		Critical:    critical,
	}
}

// OnUpdate registers fn to be called with the overall health after every run.
func (c *Checker) OnUpdate(fn func(healthy bool)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onUpdate = append(c.onUpdate, fn)
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]registered, len(c.checks))
	for name, r := range c.checks {
		checks[name] = r
	}
	c.mutex.RUnlock()

	results := make(map[string]Component, len(checks))
	for name, r := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, description, err := r.check(checkCtx)
		cancel()

		comp := Component{
			Name:        name,
			Status:      status,
			Description: description,
			Critical:    r.critical,
			LastChecked: time.Now(),
		}
		if err != nil {
			comp.Error = err.Error()
			c.log.Error("Health check failed",
				"check", name,
				"status", string(status),
				"error", err.Error(),
			)
		} else {
			c.log.Debug("Health check completed",
				"check", name,
				"status", string(status),
			)
		}
		results[name] = comp
	}

	c.mutex.Lock()
	for name, comp := range results {
		comp := comp
		c.components[name] = &comp
	}
	hooks := append([]func(bool){}, c.onUpdate...)
	c.mutex.Unlock()

	healthy := c.IsSystemHealthy()
	for _, fn := range hooks {
		fn(healthy)
	}
}

// Start runs the checks immediately and then every check period until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.RunChecks(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// GetStatus returns the current health status
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	// Create a copy to avoid race conditions
	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// IsSystemHealthy returns true if all critical components are up
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}
	return true
}

// overall summarizes the component statuses.
func (c *Checker) overall() string {
	if !c.IsSystemHealthy() {
		return "down"
	}
	for _, comp := range c.GetStatus() {
		if comp.Status != StatusUp {
			return "degraded"
		}
	}
	return "ok"
}

// GinHandler serves the latest check results. Critical failures answer 503.
func (c *Checker) GinHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		code := http.StatusOK
		if !c.IsSystemHealthy() {
			code = http.StatusServiceUnavailable
		}
		ctx.JSON(code, gin.H{
			"status":     c.overall(),
			"timestamp":  time.Now().UTC(),
			"components": c.GetStatus(),
		})
	}
}

// RegisterDatabaseCheck registers a database health check
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("database", true, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RegisterRedisCheck registers the dead letter store check. Redis is optional,
// so a failure degrades the service instead of taking it down.
func (c *Checker) RegisterRedisCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("redis", false, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDegraded, "Redis unreachable, dead letters are not recorded", err
		}
		return StatusUp, "Redis connection is established", nil
	})
}

// RegisterIndexCheck reports the reference index. loadErr is the startup load error.
func (c *Checker) RegisterIndexCheck(size func() int, loadErr error) {
	c.RegisterCheck("vector_index", false, func(context.Context) (Status, string, error) {
		if loadErr != nil {
			return StatusDegraded, "Vector index unavailable, analyses run without reference documents", loadErr
		}
		n := size()
		if n == 0 {
			return StatusDegraded, "Vector index is empty", nil
		}
		return StatusUp, fmt.Sprintf("%d reference fragments loaded", n), nil
	})
}

// PoolDepth is a snapshot of the analysis worker pool.
type PoolDepth interface {
	Running() int
	Pending() int
	Capacity() int
}

// RegisterPoolCheck reports the worker pool. A full backlog degrades the
// service since new uploads are refused until it drains.
func (c *Checker) RegisterPoolCheck(pool PoolDepth) {
	c.RegisterCheck("worker_pool", false, func(context.Context) (Status, string, error) {
		running, pending, capacity := pool.Running(), pool.Pending(), pool.Capacity()
		msg := fmt.Sprintf("%d running, %d of %d queued", running, pending, capacity)
		if pending >= capacity {
			return StatusDegraded, "Backlog full, uploads are refused: " + msg, nil
		}
		return StatusUp, msg, nil
	})
}
