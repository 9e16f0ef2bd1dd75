package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListByCandidate(ctx context.Context, candidateID string, limit, offset int) ([]model.Submission, int, error) {
	args := m.Called(ctx, candidateID, limit, offset)
	subs, _ := args.Get(0).([]model.Submission)
	return subs, args.Int(1), args.Error(2)
}

func TestArchiveServiceListSubmissions(t *testing.T) {
	tests := map[string]struct {
		page, perPage       int
		expLimit, expOffset int
		total               int
		expPages            int
		expPage, expPerPage int
	}{
		"The first page should start at zero.": {
			page: 1, perPage: 5, expLimit: 5, expOffset: 0, total: 9, expPages: 2, expPage: 1, expPerPage: 5,
		},
		"Later pages should be offset.": {
			page: 3, perPage: 2, expLimit: 2, expOffset: 4, total: 9, expPages: 5, expPage: 3, expPerPage: 2,
		},
		"A zero page should be clamped to the first.": {
			page: 0, perPage: 0, expLimit: 10, expOffset: 0, total: 0, expPages: 0, expPage: 1, expPerPage: 10,
		},
		"A huge page size should be capped.": {
			page: 1, perPage: 1000, expLimit: 100, expOffset: 0, total: 150, expPages: 2, expPage: 1, expPerPage: 100,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			lister := &mockLister{}
			lister.On("ListByCandidate", mock.Anything, "cand-1", test.expLimit, test.expOffset).
				Return(nil, test.total, nil)

			svc := NewArchiveService(lister)
			subs, pag, err := svc.ListSubmissions(context.Background(), "cand-1", test.page, test.perPage)
			require.NoError(t, err)

			lister.AssertExpectations(t)
			assert.NotNil(t, subs)
			assert.Equal(t, test.expPage, pag.Page)
			assert.Equal(t, test.expPerPage, pag.PerPage)
			assert.Equal(t, test.total, pag.TotalItems)
			assert.Equal(t, test.expPages, pag.TotalPages)
		})
	}
}

func TestArchiveServiceListSubmissionsError(t *testing.T) {
	lister := &mockLister{}
	lister.On("ListByCandidate", mock.Anything, "cand-1", 10, 0).Return(nil, 0, errors.New("db down"))

	_, _, err := NewArchiveService(lister).ListSubmissions(context.Background(), "cand-1", 1, 10)
	assert.Error(t, err)
}
