// Package service generates the seven per-client workflow summaries from
// an LLM and persists them to the client record.
package service

import (
	"context"

	clientrepo "opticai_backend/internal/clients/repository"
	"opticai_backend/internal/insights/repository"
	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/ai/openaichat"
	"opticai_backend/platform/apperr"
	"opticai_backend/platform/logger"
)

// Completer is the one-shot LLM surface the service needs.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Service generates and persists client insights.
type Service struct {
	clients *clientrepo.Repository
	repo    *repository.Repository
	llm     Completer
	log     *logger.Logger
}

// New creates a new insights service.
func New(clients *clientrepo.Repository, repo *repository.Repository, llm Completer, log *logger.Logger) *Service {
	return &Service{clients: clients, repo: repo, llm: llm, log: log}
}

var _ Completer = (*openaichat.Model)(nil)

// generate runs one LLM pass over the client bundle and returns the parsed
// sections keyed by domain.
func (s *Service) generate(ctx context.Context, clientID int64, scope tenancy.Scope) (map[string]string, error) {
	client, err := s.clients.GetByID(ctx, clientID, scope)
	if err != nil {
		return nil, err
	}

	bundle, err := s.repo.LoadBundle(ctx, client)
	if err != nil {
		s.log.DatabaseError("load insight bundle", err)
		return nil, apperr.Internal("failed to load client data")
	}

	prompt, err := buildPrompt(bundle)
	if err != nil {
		return nil, apperr.Internal(err.Error())
	}

	reply, err := s.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		s.log.LLMError("generate insights", err)
		return nil, err
	}
	return ParseSections(reply), nil
}

// GenerateAll regenerates all seven sections for a client.
func (s *Service) GenerateAll(ctx context.Context, clientID int64, scope tenancy.Scope) error {
	states, err := s.generate(ctx, clientID, scope)
	if err != nil {
		return err
	}
	if err := s.repo.SetStates(ctx, clientID, states); err != nil {
		s.log.DatabaseError("persist insight states", err)
		return apperr.Internal("failed to persist insights")
	}
	return nil
}

// GeneratePart regenerates a single section. An unknown part key is a
// validation error (HTTP 400).
func (s *Service) GeneratePart(ctx context.Context, clientID int64, part string, scope tenancy.Scope) error {
	if !IsValidDomain(part) {
		return apperr.Validation("invalid part key: " + part)
	}

	states, err := s.generate(ctx, clientID, scope)
	if err != nil {
		return err
	}
	if err := s.repo.SetStates(ctx, clientID, map[string]string{part: states[part]}); err != nil {
		s.log.DatabaseError("persist insight state", err)
		return apperr.Internal("failed to persist insight")
	}
	return nil
}
