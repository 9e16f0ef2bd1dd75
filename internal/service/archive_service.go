package service

import (
	"context"

	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stemsi/speaking-test/internal/response"
)

// SubmissionLister reads the submission archive. Implemented by repository.SubmissionRepository.
type SubmissionLister interface {
	ListByCandidate(ctx context.Context, candidateID string, limit, offset int) ([]model.Submission, int, error)
}

// ArchiveService exposes a candidate's archived submissions.
type ArchiveService struct {
	repo SubmissionLister
}

// NewArchiveService creates a new ArchiveService.
func NewArchiveService(repo SubmissionLister) *ArchiveService {
	return &ArchiveService{repo: repo}
}

// ListSubmissions returns one page of the candidate's archive.
func (s *ArchiveService) ListSubmissions(ctx context.Context, candidateID string, page, perPage int) ([]model.Submission, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	limit := perPage
	offset := (page - 1) * perPage

	subs, total, err := s.repo.ListByCandidate(ctx, candidateID, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	if subs == nil {
		subs = []model.Submission{}
	}

	totalPages := (total + perPage - 1) / perPage

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return subs, pagination, nil
}
