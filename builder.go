package srpflow

import (
	"log/slog"
	"time"

	"github.com/MrEthical07/srpflow/device"
	"github.com/MrEthical07/srpflow/idp"
	"github.com/MrEthical07/srpflow/internal/rate"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	client idp.Client

	devices device.Store
	redis   redis.UniversalClient

	logger      *slog.Logger
	auditSink   AuditSink
	contextData func(username string) string
	analytics   func() string
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserPool replaces only the user pool section of the configuration.
func (b *Builder) WithUserPool(pool UserPoolConfig) *Builder {
	b.config.UserPool = pool
	return b
}

// WithClient sets the identity provider client. Required.
func (b *Builder) WithClient(client idp.Client) *Builder {
	b.client = client
	return b
}

// WithDeviceStore sets where remembered devices are read and written.
// It takes precedence over WithRedis.
func (b *Builder) WithDeviceStore(store device.Store) *Builder {
	b.devices = store
	return b
}

// WithRedis keeps remembered devices in Redis under Config.Device and
// backs the sign-in throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit sink and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithContextData sets the provider of the encoded advanced-security payload.
func (b *Builder) WithContextData(fn func(username string) string) *Builder {
	b.contextData = fn
	return b
}

// WithAnalyticsEndpoint sets the provider of the analytics endpoint id.
func (b *Builder) WithAnalyticsEndpoint(fn func() string) *Builder {
	b.analytics = fn
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the time source used for SignedInAt, audit
// timestamps and latency.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, starts the state machine and moves
// it to SignedOut.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.client == nil {
		return nil, ErrClientRequired
	}

	if cfg.Throttle.Enabled && b.redis == nil {
		return nil, ErrThrottleRequiresRedis
	}

	namespace := cfg.UserPool.PoolID + ":" + cfg.UserPool.AppClientID
	devices := b.devices
	if devices == nil && b.redis != nil {
		devices = device.NewRedisStore(b.redis, cfg.Device.RedisPrefix, namespace, cfg.Device.TTL)
	}

	var throttle *rate.Limiter
	if cfg.Throttle.Enabled {
		throttle = rate.New(b.redis, rate.Config{
			MaxFailedSignIns: cfg.Throttle.MaxFailedSignIns,
			Cooldown:         cfg.Throttle.Cooldown,
			Prefix:           cfg.Throttle.RedisPrefix,
			Namespace:        namespace,
		})
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	e := newEngine(cfg, engineDeps{
		client:      b.client,
		devices:     devices,
		throttle:    throttle,
		logger:      logger,
		auditSink:   b.auditSink,
		contextData: b.contextData,
		analytics:   b.analytics,
		now:         now,
	})

	b.built = true
	return e, nil
}
