package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/speaking-test/internal/model"
)

// SubmissionRepository archives submitted recordings.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Upsert stores the submission, replacing an earlier one for the same question.
func (r *SubmissionRepository) Upsert(ctx context.Context, s *model.Submission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO recording_submissions
		   (id, candidate_id, part, question_index, file_path, mime_type, size_bytes, time_spent_seconds, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (candidate_id, part, question_index) DO UPDATE
		 SET id = EXCLUDED.id,
		     file_path = EXCLUDED.file_path,
		     mime_type = EXCLUDED.mime_type,
		     size_bytes = EXCLUDED.size_bytes,
		     time_spent_seconds = EXCLUDED.time_spent_seconds,
		     submitted_at = EXCLUDED.submitted_at`,
		s.ID, s.CandidateID, int(s.Part), s.QuestionIndex, s.FilePath, s.MimeType, s.SizeBytes, s.TimeSpentSeconds, s.SubmittedAt,
	)
	return err
}

// ListByCandidate returns a page of the candidate's submissions in test order and the total count.
func (r *SubmissionRepository) ListByCandidate(ctx context.Context, candidateID string, limit, offset int) ([]model.Submission, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM recording_submissions WHERE candidate_id = $1`, candidateID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, candidate_id, part, question_index, file_path, mime_type, size_bytes, time_spent_seconds, submitted_at
		 FROM recording_submissions
		 WHERE candidate_id = $1
		 ORDER BY part ASC, question_index ASC
		 LIMIT $2 OFFSET $3`,
		candidateID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var s model.Submission
		var part int
		if err := rows.Scan(&s.ID, &s.CandidateID, &part, &s.QuestionIndex, &s.FilePath, &s.MimeType, &s.SizeBytes, &s.TimeSpentSeconds, &s.SubmittedAt); err != nil {
			return nil, 0, err
		}
		s.Part = model.Part(part)
		subs = append(subs, s)
	}
	return subs, total, rows.Err()
}
