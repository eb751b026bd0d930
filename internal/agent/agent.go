package agent

import (
	"time"

	"trialist-agent/internal/common/config"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/common/observability"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/knowledge"
	"trialist-agent/internal/qualification"
	"trialist-agent/internal/resilience"
	"trialist-agent/internal/scheduling"
	booksalesmeeting "trialist-agent/internal/workers/scheduling/book-sales-meeting"
	checkqualification "trialist-agent/internal/workers/qualification/check-qualification"
	recordsignals "trialist-agent/internal/workers/conversation/record-signals"
	searchknowledge "trialist-agent/internal/workers/knowledge/search-knowledge"
	transitionstate "trialist-agent/internal/workers/conversation/transition-state"
	"trialist-agent/pkg/registry"
)

// Dependencies are the process-wide collaborators shared by every session.
// Searcher and Scheduler are optional; their tools are not offered without
// them.
type Dependencies struct {
	Resilience    config.ResilienceConfig
	Searcher      knowledge.Searcher
	Scheduler     *scheduling.Scheduler
	Catalog       *registry.Catalog
	Observability *observability.Observability
	HotLeadTeam   int
	HotLeadVolume int
	Now           func() time.Time
	RetryOptions  []resilience.ExecutorOption
	Logger        logger.Logger
}

// Agent is one live conversation: its session and the tools bound to it.
type Agent struct {
	Session *conversation.Session
	Tools   *registry.Registry
}

// Builder assembles agents. Each agent gets its own breaker table.
type Builder struct {
	deps   Dependencies
	engine *qualification.Engine
}

func NewBuilder(deps Dependencies) *Builder {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Catalog == nil {
		deps.Catalog = registry.DefaultCatalog()
	}
	return &Builder{deps: deps, engine: qualification.NewEngine(deps.Logger)}
}

func (b *Builder) Catalog() *registry.Catalog {
	return b.deps.Catalog
}

type StartOptions struct {
	ID        string
	UserEmail string
	Consent   bool
}

func (b *Builder) New(opts StartOptions) (*Agent, error) {
	sess := conversation.NewSession(b.sessionOptions(opts))
	return b.bind(sess)
}

// Resume rebuilds an agent from a checkpoint with fresh breakers.
func (b *Builder) Resume(cp *conversation.Checkpoint) (*Agent, error) {
	sess := conversation.ResumeSession(cp, b.sessionOptions(StartOptions{}))
	return b.bind(sess)
}

func (b *Builder) sessionOptions(opts StartOptions) conversation.Options {
	return conversation.Options{
		ID:        opts.ID,
		UserEmail: opts.UserEmail,
		Consent:   opts.Consent,
		Responder: b.newResponder(),
		Engine:    b.engine,
		Now:       b.deps.Now,
		Logger:    b.deps.Logger,
	}
}

func (b *Builder) newResponder() *resilience.Responder {
	rc := b.deps.Resilience
	log := b.deps.Logger

	defaults := resilience.DefaultBreakerConfig()
	if rc.FailureThreshold > 0 {
		defaults.FailureThreshold = rc.FailureThreshold
	}
	if rc.RecoveryTimeout > 0 {
		defaults.RecoveryTimeout = config.GetDuration(rc.RecoveryTimeout)
	}
	opts := []resilience.BreakerOption{resilience.WithClock(b.deps.Now)}
	for service := range rc.Services {
		threshold, recovery := rc.BreakerFor(service)
		opts = append(opts, resilience.WithServiceConfig(service, resilience.BreakerConfig{
			FailureThreshold: threshold,
			RecoveryTimeout:  recovery,
		}))
	}

	policy := resilience.DefaultRetryPolicy()
	policy.MaxRetries = rc.Retries()
	if rc.BaseDelay > 0 {
		policy.BaseDelay = config.GetDuration(rc.BaseDelay)
	}
	if rc.MaxDelay > 0 {
		policy.MaxDelay = config.GetDuration(rc.MaxDelay)
	}
	policy.Jitter = !rc.DisableJitter

	return resilience.NewResponder(
		resilience.NewBreakers(defaults, log, opts...),
		resilience.NewExecutor(policy, log, b.deps.RetryOptions...),
		resilience.NewPhrases(rc.PhraseSeed),
		log,
	)
}

func (b *Builder) bind(sess *conversation.Session) (*Agent, error) {
	log := b.deps.Logger.WithFields(map[string]interface{}{"session_id": sess.ID})
	reg := registry.New(b.deps.Catalog, sess.Responder(), sess, b.deps.Observability, log)

	if b.deps.Searcher != nil {
		h := searchknowledge.NewHandler(searchknowledge.LoadConfig(), b.deps.Searcher, sess, log)
		if err := h.Register(reg); err != nil {
			return nil, err
		}
	}
	if b.deps.Scheduler != nil {
		h := booksalesmeeting.NewHandler(booksalesmeeting.LoadConfig(), b.deps.Scheduler, sess, log)
		if err := h.Register(reg); err != nil {
			return nil, err
		}
	}
	if err := recordsignals.NewHandler(recordsignals.LoadConfig(), sess, log).Register(reg); err != nil {
		return nil, err
	}
	if err := transitionstate.NewHandler(transitionstate.LoadConfig(), sess, log).Register(reg); err != nil {
		return nil, err
	}

	qcfg := checkqualification.LoadConfig()
	if b.deps.HotLeadTeam > 0 {
		qcfg.HotLeadTeam = b.deps.HotLeadTeam
	}
	if b.deps.HotLeadVolume > 0 {
		qcfg.HotLeadVolume = b.deps.HotLeadVolume
	}
	if err := checkqualification.NewHandler(qcfg, sess, log).Register(reg); err != nil {
		return nil, err
	}

	return &Agent{Session: sess, Tools: reg}, nil
}
