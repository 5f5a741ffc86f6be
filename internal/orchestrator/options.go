package orchestrator

import (
	"time"

	"github.com/ShayCichocki/warden/internal/bundle"
	"github.com/ShayCichocki/warden/internal/contracts"
	"github.com/ShayCichocki/warden/internal/limiter"
	"github.com/ShayCichocki/warden/internal/llm"
	"github.com/ShayCichocki/warden/internal/plancheck"
	"github.com/ShayCichocki/warden/internal/registry"
	"github.com/ShayCichocki/warden/pkg/models"
)

// RequiredConfig contains the minimal required configuration for an
// Orchestrator. All fields are required and have no defaults.
type RequiredConfig struct {
	// TrustRoot is the residence every plan step must live under.
	TrustRoot models.Residence
	// Resolver builds the agent bundle for each step.
	Resolver bundle.Resolver
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	client          llm.Client
	limiter         *limiter.Limiter
	registry        *registry.Registry
	contracts       *contracts.Registry
	validator       *plancheck.Validator
	constraints     *plancheck.Constraints
	eventHandler    func(Event)
	eventBufferSize int
	abortOnError    bool
	totalTimeout    time.Duration
	maxTokens       int64
	debugLog        func(format string, args ...interface{})
}

// WithLLMClient sets the LLM client used to run stages and steps.
// Without one, every step resolves to a bundle-only result.
func WithLLMClient(c llm.Client) Option {
	return func(o *orchestratorOptions) { o.client = c }
}

// WithLimiter sets the shared concurrency limiter.
func WithLimiter(l *limiter.Limiter) Option {
	return func(o *orchestratorOptions) { o.limiter = l }
}

// WithRegistry sets the task registry runs are tracked in.
func WithRegistry(r *registry.Registry) Option {
	return func(o *orchestratorOptions) { o.registry = r }
}

// WithContracts sets the output-contract registry.
func WithContracts(c *contracts.Registry) Option {
	return func(o *orchestratorOptions) { o.contracts = c }
}

// WithConstraints sets the plan-validation constraints. The default is
// derived from the trust root's privilege.
func WithConstraints(c plancheck.Constraints) Option {
	return func(o *orchestratorOptions) { o.constraints = &c }
}

// WithValidator sets a custom plan validator (mainly for testing).
func WithValidator(v *plancheck.Validator) Option {
	return func(o *orchestratorOptions) { o.validator = v }
}

// WithEventHandler subscribes a handler to orchestration events.
func WithEventHandler(h func(Event)) Option {
	return func(o *orchestratorOptions) { o.eventHandler = h }
}

// WithEventBufferSize sets the event channel buffer size.
func WithEventBufferSize(n int) Option {
	return func(o *orchestratorOptions) { o.eventBufferSize = n }
}

// WithAbortOnError stops scheduling further batches once a sub-batch
// reports an error result.
func WithAbortOnError(b bool) Option {
	return func(o *orchestratorOptions) { o.abortOnError = b }
}

// WithTotalTimeout bounds the whole run: a step starting after the
// deadline fails immediately. Zero means no bound.
func WithTotalTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.totalTimeout = d }
}

// WithMaxTokens sets the per-call token limit for LLM generation.
func WithMaxTokens(n int64) Option {
	return func(o *orchestratorOptions) { o.maxTokens = n }
}

// WithDebugLog sets the debug logger.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(o *orchestratorOptions) { o.debugLog = fn }
}
