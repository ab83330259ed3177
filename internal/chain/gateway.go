package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/skillchain/reputation-engine/internal/monitoring"
)

// Gateway talks to the contract gateway service over HTTP. Calls are guarded
// by a circuit breaker so a dead gateway fails fast instead of stalling
// request handlers.
type Gateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *Breaker
	metrics *monitoring.Metrics
}

// NewGateway creates a gateway client for the given base URL.
func NewGateway(baseURL, apiKey string, metrics *monitoring.Metrics) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		metrics: metrics,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		breaker: NewBreaker(BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 3,
		}),
	}
}

func (g *Gateway) RegisterOracle(ctx context.Context, address, name string, specializations []string, stake float64) (CallResult, error) {
	payload := map[string]interface{}{
		"oracle_address":  address,
		"name":            name,
		"specializations": specializations,
		"stake_amount":    stake,
	}
	return g.post(ctx, "/oracle/register", payload)
}

func (g *Gateway) UpdateOracleStatus(ctx context.Context, address string, active bool, reason string) (CallResult, error) {
	payload := map[string]interface{}{
		"oracle_address": address,
		"is_active":      active,
		"reason":         reason,
	}
	return g.post(ctx, "/oracle/status", payload)
}

func (g *Gateway) SlashOracle(ctx context.Context, address string, amount float64, reason string) (CallResult, error) {
	payload := map[string]interface{}{
		"oracle_address": address,
		"slash_amount":   amount,
		"reason":         reason,
	}
	return g.post(ctx, "/oracle/slash", payload)
}

func (g *Gateway) WithdrawStake(ctx context.Context, address string) (CallResult, error) {
	payload := map[string]interface{}{
		"oracle_address": address,
	}
	return g.post(ctx, "/oracle/withdraw", payload)
}

func (g *Gateway) SubmitEvaluation(ctx context.Context, sub EvaluationSubmission) (CallResult, error) {
	return g.post(ctx, "/evaluation/submit", sub)
}

func (g *Gateway) ResolveChallenge(ctx context.Context, challengeID string, upholdOriginal bool, resolution string) (CallResult, error) {
	payload := map[string]interface{}{
		"challenge_id":    challengeID,
		"uphold_original": upholdOriginal,
		"resolution":      resolution,
	}
	return g.post(ctx, "/evaluation/resolve", payload)
}

func (g *Gateway) SubmitEvidence(ctx context.Context, transactionID, evidence string) (CallResult, error) {
	payload := map[string]interface{}{
		"transaction_id": transactionID,
		"evidence":       evidence,
	}
	return g.post(ctx, "/reputation/evidence", payload)
}

// GetReputationScore reads the advisory on-chain reputation mirror for a
// user. It returns (nil, nil) when the gateway has no record.
func (g *Gateway) GetReputationScore(ctx context.Context, user string) (*ReputationMirror, error) {
	if g.metrics != nil {
		g.metrics.IncrementGatewayCall()
	}

	var mirror *ReputationMirror
	err := g.breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			g.baseURL+"/reputation/score?user="+url.QueryEscape(user), nil)
		if err != nil {
			return fmt.Errorf("failed to build gateway request: %w", err)
		}
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("gateway request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("gateway error: status %d, body: %s", resp.StatusCode, string(raw))
		}

		var decoded ReputationMirror
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
		mirror = &decoded
		return nil
	})
	if err != nil {
		if g.metrics != nil {
			g.metrics.IncrementGatewayError()
		}
		if errors.Is(err, ErrBreakerOpen) {
			return nil, fmt.Errorf("reputation mirror unavailable: %w", err)
		}
		return nil, err
	}
	return mirror, nil
}

// BreakerState exposes the breaker state for health reporting.
func (g *Gateway) BreakerState() BreakerState {
	return g.breaker.State()
}

func (g *Gateway) post(ctx context.Context, path string, payload interface{}) (CallResult, error) {
	var result CallResult

	if g.metrics != nil {
		g.metrics.IncrementGatewayCall()
	}
	err := g.breaker.Call(func() error {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode gateway payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build gateway request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("gateway request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("gateway error: status %d, body: %s", resp.StatusCode, string(raw))
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
		return nil
	})
	if err != nil {
		if g.metrics != nil {
			g.metrics.IncrementGatewayError()
		}
		if errors.Is(err, ErrBreakerOpen) {
			return CallResult{}, fmt.Errorf("gateway call %s rejected: %w", path, err)
		}
		return CallResult{}, err
	}
	return result, nil
}
