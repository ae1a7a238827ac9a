package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
	"github.com/crmhawkins/comurban-sub001/internal/repository"
	"github.com/crmhawkins/comurban-sub001/internal/ws"
)

// CallService exposes read access to tracked calls.
type CallService struct {
	repos *repository.Repositories
}

func NewCallService(repos *repository.Repositories) *CallService {
	return &CallService{repos: repos}
}

func (s *CallService) List(ctx context.Context, filter domain.CallFilter) ([]*domain.Call, int, error) {
	return s.repos.Call.List(ctx, filter)
}

func (s *CallService) Get(ctx context.Context, id uuid.UUID) (*domain.Call, error) {
	return s.repos.Call.GetByID(ctx, id)
}

// IncidentService covers staff incident management.
type IncidentService struct {
	repos *repository.Repositories
	hub   *ws.Hub
}

func NewIncidentService(repos *repository.Repositories, hub *ws.Hub) *IncidentService {
	return &IncidentService{repos: repos, hub: hub}
}

func (s *IncidentService) List(ctx context.Context, filter domain.IncidentFilter) ([]*domain.Incident, int, error) {
	return s.repos.Incident.List(ctx, filter)
}

func (s *IncidentService) Get(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	return s.repos.Incident.GetByID(ctx, id)
}

// UpdateStatus moves an incident through its workflow. Only staff drive this;
// detection never reopens or closes incidents on its own.
func (s *IncidentService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*domain.Incident, error) {
	switch status {
	case domain.IncidentStatusOpen, domain.IncidentStatusInProgress,
		domain.IncidentStatusResolved, domain.IncidentStatusClosed:
	default:
		return nil, fmt.Errorf("invalid incident status %q", status)
	}

	inc, err := s.repos.Incident.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, fmt.Errorf("incident %s not found", id)
	}

	if err := s.repos.Incident.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	inc.Status = status
	return inc, nil
}
