package websocket

import (
	"testing"

	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	tests := map[string]struct {
		frame     string
		expAction Action
		expErr    bool
	}{
		"A plain action should be parsed.": {
			frame:     `{"action":"next"}`,
			expAction: ActionNext,
		},
		"Extra fields should be kept for later decoding.": {
			frame:     `{"action":"enter","part":2}`,
			expAction: ActionEnter,
		},
		"Invalid JSON should fail.": {
			frame:  `{"action":`,
			expErr: true,
		},
		"A missing action should fail.": {
			frame:  `{"part":2}`,
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(test.frame))
			if test.expErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expAction, env.Action)
		})
	}
}

func TestEnvelopeDecode(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"action":"notes","part":3,"notes":"ideas"}`))
	require.NoError(t, err)

	var req NotesRequest
	require.NoError(t, env.Decode(&req))
	assert.Equal(t, model.Part3, req.Part)
	assert.Equal(t, "ideas", req.Notes)

	env, err = ParseEnvelope([]byte(`{"action":"artifact_ready","capture_id":"x"}`))
	require.NoError(t, err)
	var art ArtifactRequest
	assert.ErrorIs(t, env.Decode(&art), ErrMalformed)
}
