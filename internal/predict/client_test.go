package predict

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/careoclock/server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAssessSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(85), payload["adherence_rate"])

		json.NewEncoder(w).Encode(RiskAssessment{
			RiskLevel:  "Low",
			Confidence: 0.92,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	sys := 120
	result := client.Assess(context.Background(), &store.HealthRecord{Systolic: &sys}, 85)

	assert.Equal(t, "Low", result.RiskLevel)
	assert.False(t, result.Fallback)
}

func TestAssessFallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	result := client.Assess(context.Background(), nil, 50)

	assert.True(t, result.Fallback)
	assert.Equal(t, "High", result.RiskLevel)
	assert.Equal(t, 0.87, result.Confidence)
	assert.Equal(t, 0.87, result.Probabilities["High"])
}

func TestAssessFallbackWhenUnconfigured(t *testing.T) {
	client := NewClient("", 5*time.Second, zap.NewNop())
	result := client.Assess(context.Background(), nil, 100)
	assert.True(t, result.Fallback)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result := client.Assess(ctx, nil, 50)
		assert.True(t, result.Fallback)
	}
	// After three consecutive failures the breaker is open and calls
	// short-circuit without hitting the server.
	assert.Equal(t, "open", client.breaker.State().String())
}
