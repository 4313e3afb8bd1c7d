package verification

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/registry"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// RejectMessage is the status message of a rejected install.
const RejectMessage = "Install not allowed"

// MaxExtension bounds a single timeout extension.
const MaxExtension = time.Hour

// Packages reports which verifier packages are installed.
type Packages interface {
	IsInstalled(name string, user int) bool
}

// Options are the coordinator's policy knobs.
type Options struct {
	Enabled          bool
	Timeout          time.Duration
	StreamingTimeout time.Duration
	DefaultAllow     bool
	Policy           *config.VerifierPolicy
}

// OptionsFromConfig maps the verification config section.
func OptionsFromConfig(cfg config.VerificationConfig) (Options, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Enabled:          cfg.Enabled,
		Timeout:          cfg.Timeout,
		StreamingTimeout: cfg.StreamingTimeout,
		DefaultAllow:     cfg.DefaultAllow,
		Policy:           policy,
	}, nil
}

// Coordinator runs the verification broadcast protocol. Each commit that
// has verifiers gets a request; verifiers answer through Respond or
// ExtendTimeout and the request ends exactly once.
type Coordinator struct {
	mu       sync.Mutex
	pending  map[int]*request
	nextID   int
	opts     Options
	packages Packages
	bus      broadcast.Publisher
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics enables verification metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a coordinator.
func NewCoordinator(opts Options, packages Packages, bus broadcast.Publisher, options ...Option) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.StreamingTimeout <= 0 {
		opts.StreamingTimeout = opts.Timeout
	}
	if opts.Policy == nil {
		opts.Policy = &config.VerifierPolicy{Sufficient: map[string][]string{}}
	}
	c := &Coordinator{
		pending:  make(map[int]*request),
		nextID:   1,
		opts:     opts,
		packages: packages,
		bus:      bus,
		logger:   zap.NewNop(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Verify broadcasts NEEDS_VERIFICATION for a prepared install and blocks
// until the request ends. A nil return allows the install.
func (c *Coordinator) Verify(ctx context.Context, sessionID int, params types.SessionParams, plan *registry.Plan) error {
	if !c.opts.Enabled {
		return nil
	}
	user := params.UserID
	if user == types.AllUsers {
		user = 0
	}
	verifiers := c.verifiersFor(plan, user)
	if len(verifiers) == 0 {
		return nil
	}

	loader := params.DataLoaderType()
	timeout := c.opts.Timeout
	if loader != types.DataLoaderNone {
		timeout = c.opts.StreamingTimeout
	}

	c.mu.Lock()
	now := time.Now()
	req := &request{
		id:           c.nextID,
		sessionID:    sessionID,
		packageName:  plan.PackageName,
		user:         user,
		loader:       loader,
		verifiers:    verifiers,
		created:      now,
		deadline:     now.Add(timeout),
		timeoutAllow: c.opts.DefaultAllow || loader != types.DataLoaderNone,
		done:         make(chan struct{}),
	}
	c.nextID++
	if loader == types.DataLoaderIncremental {
		if base, ok := plan.Splits[apk.BaseSplit]; ok {
			req.rootHash = "base.apk:" + base.Digest
		}
	}
	c.pending[req.id] = req
	req.timer = time.AfterFunc(timeout, func() { c.expire(req.id) })
	c.metrics.AddVerificationsPending(1)

	bcs := make([]broadcast.Broadcast, 0, len(verifiers))
	for _, v := range verifiers {
		bcs = append(bcs, broadcast.Broadcast{
			Action:         broadcast.ActionPackageNeedsVerification,
			PackageName:    plan.PackageName,
			UserID:         user,
			Target:         v.pkg,
			SessionID:      sessionID,
			VerificationID: req.id,
			DataLoaderType: loader,
			RootHash:       req.rootHash,
		})
	}
	c.publish(bcs)
	c.mu.Unlock()

	c.logger.Info("verification requested",
		zap.Int("verification_id", req.id),
		logging.Session(sessionID),
		logging.Package(plan.PackageName),
		zap.Int("verifiers", len(verifiers)),
		zap.Duration("timeout", timeout))

	select {
	case <-req.done:
	case <-ctx.Done():
		c.mu.Lock()
		c.finishLocked(req, StateAborted)
		c.mu.Unlock()
		return pmerr.Wrap(pmerr.Aborted, ctx.Err(), "Verification %d aborted", req.id)
	}

	c.mu.Lock()
	state := req.state
	c.mu.Unlock()
	switch {
	case state.allowed():
		return nil
	case state == StateAborted:
		return pmerr.New(pmerr.Aborted, "Verification %d aborted", req.id)
	default:
		return pmerr.New(pmerr.VerificationRejected, RejectMessage)
	}
}

// verifiersFor lists installed required verifiers, then installed
// sufficient verifiers named by the manifest or the policy.
func (c *Coordinator) verifiersFor(plan *registry.Plan, user int) []*participant {
	var out []*participant
	seen := make(map[string]bool)
	add := func(pkg string, required bool) {
		if pkg == "" || seen[pkg] || pkg == plan.PackageName || !c.packages.IsInstalled(pkg, user) {
			return
		}
		seen[pkg] = true
		out = append(out, &participant{pkg: pkg, required: required})
	}
	for _, pkg := range c.opts.Policy.Required {
		add(pkg, true)
	}
	for _, pkg := range plan.Manifest.Verifiers {
		add(pkg, false)
	}
	for _, pkg := range c.opts.Policy.Sufficient[plan.PackageName] {
		add(pkg, false)
	}
	return out
}

// Respond records a verifier's decision.
func (c *Coordinator) Respond(id int, verifier string, decision Decision) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, p, err := c.participantLocked(id, verifier)
	if err != nil {
		return err
	}
	p.response = decision
	c.logger.Info("verifier responded",
		zap.Int("verification_id", id),
		zap.String("verifier", verifier),
		zap.Bool("required", p.required),
		zap.String("decision", decision.String()))

	if state := req.aggregate(); state.Terminal() {
		c.finishLocked(req, state)
	}
	return nil
}

// ExtendTimeout pushes the deadline of a pending request out by extra and
// sets what happens if it still elapses. A request can be extended once.
// Streaming and incremental installs run on a fixed window; extending
// them is accepted and ignored.
func (c *Coordinator) ExtendTimeout(id int, verifier string, futureAction Decision, extra time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, _, err := c.participantLocked(id, verifier)
	if err != nil {
		return err
	}
	if req.loader != types.DataLoaderNone || req.extended {
		return nil
	}
	extra = min(max(extra, 0), MaxExtension)
	req.extended = true
	req.timeoutAllow = futureAction == Allow
	req.deadline = req.deadline.Add(extra)
	req.timer.Reset(time.Until(req.deadline))

	c.logger.Info("verification extended",
		zap.Int("verification_id", id),
		zap.String("verifier", verifier),
		zap.Duration("extra", extra),
		zap.String("future_action", futureAction.String()))
	return nil
}

// Pending lists pending requests ordered by id.
func (c *Coordinator) Pending() []Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Info, 0, len(c.pending))
	for _, req := range c.pending {
		out = append(out, req.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a pending request.
func (c *Coordinator) Get(id int) (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.pending[id]
	if !ok {
		return Info{}, false
	}
	return req.info(), true
}

func (c *Coordinator) participantLocked(id int, verifier string) (*request, *participant, error) {
	req, ok := c.pending[id]
	if !ok {
		return nil, nil, pmerr.New(pmerr.VerificationNotFound, "Verification %d is not pending", id)
	}
	p := req.participant(verifier)
	if p == nil {
		return nil, nil, pmerr.New(pmerr.VerificationNotFound, "%s is not a verifier of request %d", verifier, id)
	}
	return req, p, nil
}

func (c *Coordinator) expire(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.pending[id]
	if !ok || time.Now().Before(req.deadline) {
		return
	}
	state := StateTimedOutReject
	if req.timeoutAllow {
		state = StateTimedOutAllow
	}
	c.finishLocked(req, state)
}

// finishLocked moves req to a terminal state. Later calls are no-ops.
func (c *Coordinator) finishLocked(req *request, state State) {
	if req.state.Terminal() {
		return
	}
	req.state = state
	req.timer.Stop()
	delete(c.pending, req.id)
	close(req.done)

	c.metrics.AddVerificationsPending(-1)
	c.metrics.RecordVerification(outcomeLabel(state), time.Since(req.created))

	targets := make([]string, 0, len(req.verifiers))
	for _, p := range req.verifiers {
		targets = append(targets, p.pkg)
	}
	slices.Sort(targets)
	bcs := make([]broadcast.Broadcast, 0, len(targets))
	for _, t := range targets {
		bcs = append(bcs, broadcast.Broadcast{
			Action:         broadcast.ActionPackageVerified,
			PackageName:    req.packageName,
			UserID:         req.user,
			Target:         t,
			SessionID:      req.sessionID,
			VerificationID: req.id,
			Success:        state.allowed(),
		})
	}
	c.publish(bcs)

	c.logger.Info("verification finished",
		zap.Int("verification_id", req.id),
		logging.Session(req.sessionID),
		logging.Package(req.packageName),
		zap.String("state", state.String()))
}

func (c *Coordinator) publish(bcs []broadcast.Broadcast) {
	if c.bus != nil && len(bcs) > 0 {
		c.bus.Publish(bcs...)
	}
}

func outcomeLabel(s State) string {
	switch s {
	case StateAllowed:
		return "allowed"
	case StateRejected:
		return "rejected"
	case StateTimedOutAllow:
		return "timed_out_allow"
	case StateTimedOutReject:
		return "timed_out_reject"
	default:
		return "aborted"
	}
}
