package services

import (
	"context"
	"log"
)

// HealthResult is the body of the health endpoint
type HealthResult struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
}

// HealthService reports service and database health
type HealthService struct {
	name  string
	check func() error
}

// NewHealthService creates a new health service. check pings the database.
func NewHealthService(name string, check func() error) *HealthService {
	return &HealthService{name: name, check: check}
}

// Check implements the health check method
func (s *HealthService) Check(ctx context.Context) *HealthResult {
	result := &HealthResult{Status: "healthy", Service: s.name, Database: "ok"}
	if s.check != nil {
		if err := s.check(); err != nil {
			log.Printf("[HEALTH] Database check failed: %v", err)
			result.Status = "degraded"
			result.Database = "unavailable"
		}
	}
	return result
}
