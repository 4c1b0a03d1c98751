package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditworks/recon-engine/recon"
)

func TestClient_Score_Success(t *testing.T) {
	// GIVEN: A scoring endpoint echoing one score per instance
	// WHEN: A three-vector batch is submitted
	// THEN: The scores come back in order and the wire format matches

	var received scoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.1, 2.5, 0.3}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	features := [][]float64{{40, 0, 70, 2800}, {50, 10, 85, 4250}, {40, 0, 45, 1800}}

	scores, err := client.Score(context.Background(), features)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 2.5, 0.3}, scores)
	assert.Equal(t, features, received.Instances)
}

func TestClient_Score_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		sentinel  error
		retryable bool
	}{
		{"throttled", http.StatusTooManyRequests, recon.ErrScorerThrottled, true},
		{"unavailable", http.StatusServiceUnavailable, recon.ErrScorerUnavailable, true},
		{"server fault", http.StatusBadGateway, recon.ErrScorerUnavailable, true},
		{"model fault", http.StatusUnprocessableEntity, recon.ErrScorerModel, false},
		{"bad request", http.StatusBadRequest, recon.ErrScorerInvalidInput, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Score(context.Background(), [][]float64{{1}})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)
			assert.Equal(t, tc.retryable, recon.IsRetryableScore(err))
			assert.Equal(t, !tc.retryable, recon.IsPermanentScore(err))
		})
	}
}

func TestClient_Score_NetworkError_Transient(t *testing.T) {
	// GIVEN: An endpoint that is not listening
	// WHEN: A batch is submitted
	// THEN: The failure classifies as transient

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL).Score(context.Background(), [][]float64{{1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, recon.ErrScorerUnavailable)
	assert.True(t, recon.IsRetryableScore(err))
}

func TestClient_Score_MalformedBody_Permanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Score(context.Background(), [][]float64{{1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, recon.ErrScorerModel)
}

func TestClient_Score_CountMismatch_Permanent(t *testing.T) {
	// GIVEN: An endpoint returning one score for two instances
	// WHEN: The batch is submitted
	// THEN: The mismatch classifies as a model fault

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.5}})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Score(context.Background(), [][]float64{{1}, {2}})
	require.Error(t, err)
	assert.ErrorIs(t, err, recon.ErrScorerModel)
}

func TestClient_Score_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL).Score(ctx, [][]float64{{1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, recon.ErrScorerUnavailable)
}
