package contour

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kontourlabs/kontourd/metrics"
)

// DefaultRemoteTimeout bounds a single oracle call.
const DefaultRemoteTimeout = 5 * time.Second

// Mode is the verifier's operating state.
type Mode int32

const (
	// ModeRemote asks the oracle and trusts its verdict.
	ModeRemote Mode = iota
	// ModeFallback skips the oracle and runs the local approximate check.
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeRemote:
		return "remote"
	case ModeFallback:
		return "fallback"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// verifyRequest is the oracle wire format.
type verifyRequest struct {
	ContourData     *Data  `json:"contourData"`
	TransactionHash string `json:"transactionHash"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// Verifier decides whether a transaction's geometric proof is acceptable.
// It starts in remote mode; the first oracle failure moves it to fallback
// mode, where it stays until Reset is called. Failures are logged, never
// surfaced as errors.
type Verifier struct {
	params   Params
	endpoint string
	client   *http.Client
	log      *zap.Logger
	met      *metrics.Metrics

	mu   sync.Mutex
	mode Mode
}

// Option configures a Verifier.
type Option func(*Verifier)

func WithLogger(log *zap.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) { v.client = client }
}

func WithMetrics(met *metrics.Metrics) Option {
	return func(v *Verifier) { v.met = met }
}

// NewVerifier builds a verifier for the oracle at endpoint.
func NewVerifier(params Params, endpoint string, opts ...Option) *Verifier {
	v := &Verifier{
		params:   params,
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultRemoteTimeout},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Mode returns the current operating state.
func (v *Verifier) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// Reset returns the verifier to remote mode. Operators call this once the
// oracle is known healthy again; there is no automatic recovery.
func (v *Verifier) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mode != ModeRemote {
		v.log.Info("geometric verifier reset to remote mode")
		v.mode = ModeRemote
	}
}

// Verify reports whether the proof attached to a transaction is acceptable.
// A transaction without contour data requires no proof and passes.
func (v *Verifier) Verify(ctx context.Context, data *Data, txHash string) bool {
	if data == nil || len(data.Points) == 0 {
		return true
	}
	if v.Mode() == ModeRemote {
		valid, err := v.verifyRemote(ctx, data, txHash)
		if err == nil {
			if v.met != nil {
				outcome := "invalid"
				if valid {
					outcome = "valid"
				}
				v.met.RemoteVerifications.WithLabelValues(outcome).Inc()
			}
			if !valid {
				v.log.Debug("remote geometric verification rejected proof",
					zap.String("tx", txHash))
			}
			return valid
		}
		if v.met != nil {
			v.met.RemoteVerifications.WithLabelValues("error").Inc()
		}
		v.enterFallback(err)
	}
	valid := v.verifyLocal(data)
	if !valid {
		v.log.Debug("local geometric check rejected proof", zap.String("tx", txHash))
	}
	return valid
}

func (v *Verifier) verifyRemote(ctx context.Context, data *Data, txHash string) (bool, error) {
	body, err := json.Marshal(verifyRequest{ContourData: data, TransactionHash: txHash})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}
	var verdict verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return false, fmt.Errorf("decode oracle response: %w", err)
	}
	return verdict.Valid, nil
}

// enterFallback performs the Remote->Fallback transition. Concurrent failing
// calls race to it; only the first one flips the state and logs.
func (v *Verifier) enterFallback(cause error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mode == ModeFallback {
		return
	}
	v.mode = ModeFallback
	if v.met != nil {
		v.met.FallbackTransitions.Inc()
	}
	v.log.Warn("remote geometric verification unavailable, degrading to local check",
		zap.Error(cause))
}

// verifyLocal runs the approximate check: every point must satisfy the
// configured dimensionality and coordinate bounds, the algorithm must be
// known, and the proof's complexity must reach the configured minimum.
func (v *Verifier) verifyLocal(data *Data) bool {
	proc := NewProcessor(v.params)
	for _, pt := range data.Points {
		if err := proc.AddPoint(pt); err != nil {
			return false
		}
	}
	if _, err := proc.Contour(data.Algorithm); err != nil {
		return false
	}
	return proc.Complexity(data.Algorithm) >= v.params.MinComplexity
}
