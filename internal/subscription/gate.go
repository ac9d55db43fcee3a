package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/scopes"
	apperrors "github.com/talkbase/accounts/pkg/errors"
	"github.com/talkbase/accounts/pkg/logger"
)

// DefaultSeatLimit applies when no subscription raises it.
const DefaultSeatLimit = 2

const defaultRequestTimeout = 10 * time.Second

// Entitlements describes what a team's active subscriptions unlock: the
// scopes its members may hold and the number of seats the team may fill.
type Entitlements struct {
	Scopes    []scopes.Scope
	SeatLimit int
}

// Gate answers entitlement questions for a team. Implementations may call a
// billing service or return static grants.
type Gate interface {
	// ActiveEntitlements resolves the scopes and seat limit unlocked by the
	// team's active subscriptions. The user identifies whose team to check.
	ActiveEntitlements(ctx context.Context, user auth.TokenUser) (Entitlements, error)

	// AcknowledgeNewTeam informs the billing service that a team was
	// created so it can provision a trial. Failures are logged, not
	// returned; team creation never blocks on billing.
	AcknowledgeNewTeam(ctx context.Context, user auth.TokenUser, teamID string)
}

// Config describes how to reach the billing service.
type Config struct {
	// BaseURL of the billing service. Empty disables the gate.
	BaseURL string
	Timeout time.Duration
}

// HTTPGate queries the billing service over HTTP, authenticating with
// short-lived service tokens minted on behalf of the asking user.
type HTTPGate struct {
	baseURL string
	client  *http.Client
	tokens  *auth.TokenService
	log     *zap.Logger
}

// NewHTTPGate builds a gate against the configured billing service.
func NewHTTPGate(cfg Config, tokens *auth.TokenService) *HTTPGate {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &HTTPGate{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     logger.WithStream("subscription"),
	}
}

type purchasesResponse struct {
	Purchases []struct {
		ID       string   `json:"id"`
		Features []string `json:"features"`
		Seats    int      `json:"seats"`
	} `json:"purchases"`
}

// ActiveEntitlements fetches the team's active purchases and maps their
// features onto the scope catalogue. The seat limit is the largest seat
// count across active purchases, never below the default.
func (g *HTTPGate) ActiveEntitlements(ctx context.Context, user auth.TokenUser) (Entitlements, error) {
	token, err := g.tokens.IssueService(user)
	if err != nil {
		return Entitlements{}, fmt.Errorf("subscription gate: issue service token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/purchases/active", nil)
	if err != nil {
		return Entitlements{}, fmt.Errorf("subscription gate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return Entitlements{}, apperrors.NewUpstream("Could not reach the billing service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Entitlements{}, apperrors.NewUpstream(
			"The billing service returned an error",
			fmt.Errorf("status %d: %s", resp.StatusCode, body),
		)
	}

	var payload purchasesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Entitlements{}, apperrors.NewUpstream("The billing service returned an invalid response", err)
	}

	var features []string
	seats := DefaultSeatLimit
	for _, purchase := range payload.Purchases {
		features = append(features, purchase.Features...)
		if purchase.Seats > seats {
			seats = purchase.Seats
		}
	}

	return Entitlements{
		Scopes:    scopes.ForFeatures(features),
		SeatLimit: seats,
	}, nil
}

// AcknowledgeNewTeam tells billing to provision the new team. The service
// token carries payments access so billing can attribute the trial.
func (g *HTTPGate) AcknowledgeNewTeam(ctx context.Context, user auth.TokenUser, teamID string) {
	token, err := g.tokens.IssueService(user, "PAYMENTS_READ")
	if err != nil {
		g.log.Error("acknowledge new team: issue service token", zap.Error(err))
		return
	}

	body := strings.NewReader(fmt.Sprintf(`{"teamId":%q}`, teamID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/teams", body)
	if err != nil {
		g.log.Error("acknowledge new team: build request", zap.Error(err))
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Error("acknowledge new team: request failed",
			zap.String("teamId", teamID), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		g.log.Error("acknowledge new team: billing rejected team",
			zap.String("teamId", teamID), zap.Int("status", resp.StatusCode))
	}
}

// StaticGate grants the base scope set and the default seat limit. Used when
// no billing service is configured, and in tests.
type StaticGate struct {
	Entitled Entitlements
}

// NewStaticGate returns a gate granting the feature-free scope set.
func NewStaticGate() *StaticGate {
	return &StaticGate{Entitled: Entitlements{
		Scopes:    scopes.Base(),
		SeatLimit: DefaultSeatLimit,
	}}
}

func (g *StaticGate) ActiveEntitlements(context.Context, auth.TokenUser) (Entitlements, error) {
	return g.Entitled, nil
}

func (g *StaticGate) AcknowledgeNewTeam(context.Context, auth.TokenUser, string) {}

// NewGate picks the HTTP gate when a billing URL is configured, otherwise
// the static fallback.
func NewGate(cfg Config, tokens *auth.TokenService) Gate {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return NewStaticGate()
	}
	return NewHTTPGate(cfg, tokens)
}
