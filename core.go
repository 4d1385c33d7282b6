package stratumcore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Core wires the job registry, share validation and the node-facing
// collaborators from a Config.
type Core struct {
	cfg Config

	Registry  *JobRegistry
	Validator *ShareValidator
	Pool      *SubmissionPool
	Events    *EventBus
	RPC       *RPCClient
	Feed      *TemplateFeed
	// Metrics and Store are nil when disabled in the config.
	Metrics *PromMetrics
	Store   *FoundBlockStore

	submitter *BlockSubmitter
	stopOnce  sync.Once
}

func NewCore(cfg Config) (*Core, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := ConfigureLogging(cfg.Logging); err != nil {
		return nil, err
	}
	jobOpts, err := cfg.JobOptions()
	if err != nil {
		return nil, err
	}
	valOpts, err := cfg.ValidatorOptions()
	if err != nil {
		return nil, err
	}

	c := &Core{
		cfg:    cfg,
		Events: NewEventBus(cfg.Pool.EventWorkers),
		RPC:    NewRPCClient(cfg.Node),
	}
	sinks := MultiSink{c.Events}

	if cfg.Metrics.Namespace != "" {
		c.Metrics, err = NewPromMetrics(cfg.Metrics.Namespace)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		c.RPC.setObserver(c.Metrics)
		sinks = append(sinks, c.Metrics)
	}
	if cfg.State.FoundBlocksDB != "" {
		c.Store, err = OpenFoundBlockStore(cfg.State.FoundBlocksDB)
		if err != nil {
			return nil, fmt.Errorf("open found block store %s: %w", cfg.State.FoundBlocksDB, err)
		}
		sinks = append(sinks, c.Store)
	}

	c.submitter = NewBlockSubmitter(c.RPC, func() *Job { return c.Registry.CurrentJob() }, c.onBlockSubmitted)
	sinks = append(sinks, c.submitter)

	c.Registry = NewJobRegistry(RegistryOptions{
		Extranonces: NewExtranonceCounter(cfg.Pool.InstanceID),
		JobIDs:      NewJobCounter(),
		Jobs:        jobOpts,
		Events:      sinks,
	})
	valOpts.Events = sinks
	c.Validator = NewShareValidator(c.Registry, valOpts)
	c.Pool = NewSubmissionPool(c.Validator, cfg.Pool.SubmissionWorkers)
	c.Feed = NewTemplateFeed(c.RPC, c.Registry, TemplateFeedOptions{
		PollInterval:     cfg.Node.PollInterval,
		JobRefresh:       cfg.Node.JobRefresh,
		ZMQHashBlockAddr: cfg.Node.ZMQHashBlockAddr,
		CheckBestBlock:   cfg.Node.CheckBestBlock,
	})

	params, _ := chainParamsForNetwork(cfg.Pool.Network)
	logger.Info("stratum core configured",
		"network", params.Name,
		"payout", scriptToAddress(jobOpts.PayoutScript, params),
		"algorithm", valOpts.Algorithm.Name,
		"reward", jobOpts.Reward.String(),
		"extranonce2_size", jobOpts.Extranonce2Size,
		"version_mask", uint32ToBEHex(jobOpts.VersionMask),
		"sha256", SHA256ImplementationName(),
	)
	return c, nil
}

func (c *Core) onBlockSubmitted(rec ShareRecord, err error) {
	if c.Metrics != nil {
		result := "accepted"
		if err != nil {
			result = "error"
		}
		c.Metrics.RecordBlockSubmission(result)
	}
	if c.Store != nil {
		c.Store.MarkSubmitted(rec.BlockHash, err)
	}
}

// Start begins event dispatch and template polling.
func (c *Core) Start(ctx context.Context) {
	c.Events.Start(ctx)
	c.Feed.Start(ctx)
}

// Health reports whether the current job is backed by a working template
// feed.
func (c *Core) Health() Health {
	return feedHealth(c.Registry, c.Feed.Status(), time.Now())
}

// Submit validates one share on the worker pool.
func (c *Core) Submit(ctx context.Context, req SubmitRequest) (ShareResult, error) {
	return c.Pool.Submit(ctx, req)
}

// Stop shuts everything down in dependency order: no new templates, no new
// shares, pending block submissions finished, then the sinks.
func (c *Core) Stop() {
	c.stopOnce.Do(func() {
		c.Feed.Stop()
		c.Pool.Close()
		c.submitter.Wait()
		c.Events.Stop()
		if c.Store != nil {
			if err := c.Store.Close(); err != nil {
				logger.Warn("close found block store", "error", err)
			}
		}
		logger.Info("stratum core stopped")
	})
}
