package rowAuth

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/rowAuth/internal/ids"
	"github.com/MrEthical07/rowAuth/internal/rate"
	"github.com/MrEthical07/rowAuth/password"
	"github.com/MrEthical07/rowAuth/token"
)

// Engine is the authentication core. It is stateless between calls; all
// account state lives in the injected [UserStore]. Safe for concurrent use.
type Engine struct {
	config     Config
	store      UserStore
	mailer     Mailer
	tokens     *token.Manager
	passwords  *password.Argon2
	ids        *ids.Generator
	limiter    *rate.Limiter
	audit      *auditDispatcher
	metrics    *Metrics
	now        func() time.Time
	httpClient *http.Client
}

// Close shuts down the audit dispatcher, draining buffered events. The engine
// must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MintCustomToken signs a custom token asserting the given uid. The caller
// holds the server secret by construction, so no account lookup is performed;
// extra claims ride along but never override uid or the reserved fields.
func (e *Engine) MintCustomToken(uid string, claims map[string]any) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if uid == "" {
		return "", ErrInvalidInput
	}

	merged := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		merged[k] = v
	}
	merged["uid"] = uid

	return e.tokens.SignTyped(token.TypeCustom, merged)
}

func (e *Engine) nowMillis() int64 {
	return e.now().UnixMilli()
}

// user wraps a record in a handle bound to this engine.
func (e *Engine) user(data *UserRecord) *User {
	return &User{engine: e, data: data}
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	event.Timestamp = e.now()
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}
