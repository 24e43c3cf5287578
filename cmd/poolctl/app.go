package main

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/R3E-Network/teepool/internal/config"
	"github.com/R3E-Network/teepool/internal/events"
	"github.com/R3E-Network/teepool/internal/ledger"
	"github.com/R3E-Network/teepool/internal/metrics"
	"github.com/R3E-Network/teepool/internal/pool"
	"github.com/R3E-Network/teepool/internal/registry"
	"github.com/R3E-Network/teepool/internal/sweeper"
	"github.com/R3E-Network/teepool/pkg/logger"
	"github.com/R3E-Network/teepool/tee/attestation"
	"github.com/R3E-Network/teepool/tee/keys"
	"github.com/R3E-Network/teepool/tee/neo"
	"github.com/R3E-Network/teepool/tee/types"
)

// demoEnclaveCode stands in for the operator enclave binary when no
// measurement is configured.
var demoEnclaveCode = []byte("teepool operator enclave (simulation)")

type app struct {
	cfg *config.Config
	log *logger.Logger

	metrics *metrics.Collector
	events  *events.RingBuffer
	ledger  *ledger.Memory

	keys     *keys.Manager
	signer   *neo.Signer
	attestor *attestation.Verifier

	registry *registry.Registry
	engine   *pool.Engine
	sweeper  *sweeper.Sweeper

	// measurement is the MRENCLAVE operators in this process attest to.
	measurement string
}

func newApp(cfg *config.Config, clk pool.Clock, out io.Writer) (*app, error) {
	log := logger.New(logger.Config{
		Component: "poolctl",
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    out,
	})

	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewCollector(cfg.Metrics.Namespace),
		events:  events.NewRingBuffer(cfg.Pool.EventBuffer),
		ledger:  ledger.NewMemory(),
	}

	seed, err := a.masterSeed()
	if err != nil {
		return nil, err
	}
	if a.keys, err = keys.New(seed); err != nil {
		return nil, fmt.Errorf("key manager: %w", err)
	}
	if a.signer, err = neo.NewSigner(neo.Config{Keys: a.keys}); err != nil {
		return nil, fmt.Errorf("neo signer: %w", err)
	}

	measurements := cfg.TEE.Measurements
	if len(measurements) == 0 {
		measurements = []string{attestation.Measure(demoEnclaveCode)}
		log.WithField("mr_enclave", measurements[0]).Warn("no enclave measurements configured, allowing the simulation enclave")
	}
	a.measurement = measurements[0]
	if a.attestor, err = attestation.NewVerifier(attestation.Config{
		Mode:                types.ParseEnclaveMode(cfg.TEE.Mode),
		AllowedMeasurements: measurements,
		Logger:              log.Named("attestation"),
	}); err != nil {
		return nil, fmt.Errorf("attestation verifier: %w", err)
	}

	if a.registry, err = registry.New(registry.Config{
		Verifier: a.attestor,
		Clock:    clk,
		Events:   a.events,
		Metrics:  a.metrics,
		Logger:   log.Named("registry"),
	}); err != nil {
		return nil, fmt.Errorf("operator registry: %w", err)
	}

	if a.engine, err = pool.New(pool.Config{
		Registry:            a.registry,
		Verifier:            neo.NewVerifier(),
		Ledger:              a.ledger,
		Clock:               clk,
		TimeoutInterval:     cfg.Pool.TimeoutInterval,
		DisableDisputeChain: !cfg.Pool.ChainDisputes,
		Events:              a.events,
		Metrics:             a.metrics,
		Logger:              log.Named("pool"),
	}); err != nil {
		return nil, fmt.Errorf("pool engine: %w", err)
	}

	if a.sweeper, err = sweeper.New(sweeper.Config{
		Engine:     a.engine,
		Schedule:   cfg.Sweeper.Schedule,
		CheckRate:  cfg.Sweeper.CheckRate,
		CheckBurst: cfg.Sweeper.CheckBurst,
		Metrics:    a.metrics,
		Logger:     log.Named("sweeper"),
	}); err != nil {
		return nil, fmt.Errorf("sweeper: %w", err)
	}

	return a, nil
}

func (a *app) masterSeed() ([]byte, error) {
	if a.cfg.TEE.MasterSeed != "" {
		return a.cfg.TEE.Seed()
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate master seed: %w", err)
	}
	a.log.Warn("no master seed configured, operator keys are ephemeral")
	return seed, nil
}

func (a *app) close() {
	a.sweeper.Stop()
	a.keys.Zero()
}
