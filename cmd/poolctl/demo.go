package main

import (
	"context"
	"fmt"
	"io"

	"github.com/R3E-Network/teepool/internal/clock"
	"github.com/R3E-Network/teepool/internal/commitment"
	"github.com/R3E-Network/teepool/internal/pool"
	"github.com/R3E-Network/teepool/tee/attestation"
	"github.com/R3E-Network/teepool/tee/types"
)

// demo walks two pools through the protocol with real enclave keys: one
// survives a nested dispute, the other is crashed by the sweeper.
type demo struct {
	a   *app
	clk *clock.Manual
	out io.Writer

	operators [pool.PoolSize]types.Identity
}

func runDemo(ctx context.Context, a *app, clk *clock.Manual, out io.Writer) error {
	d := &demo{a: a, clk: clk, out: out}

	if err := d.registerOperators(ctx); err != nil {
		return err
	}
	if err := d.survivingPool(ctx, pool.NewPoolID(7)); err != nil {
		return err
	}
	if err := d.abandonedPool(ctx, pool.NewPoolID(8)); err != nil {
		return err
	}

	fmt.Fprintf(out, "registry epoch %s, %d events recorded\n", a.registry.CurrentEpoch(), a.events.Count())
	return nil
}

func (d *demo) registerOperators(ctx context.Context) error {
	for i, name := range []string{"alpha", "bravo", "charlie"} {
		id, err := d.a.signer.DeriveOperator(ctx, "operator/"+name)
		if err != nil {
			return fmt.Errorf("derive operator %s: %w", name, err)
		}
		quote, err := attestation.GenerateQuote(d.a.measurement, id.SignatureAddress, id.EncryptionKey)
		if err != nil {
			return fmt.Errorf("quote operator %s: %w", name, err)
		}
		epoch, err := d.a.registry.Register(ctx, id.Address, id.SignatureAddress, id.EncryptionKey, quote.RawQuote)
		if err != nil {
			return fmt.Errorf("register operator %s: %w", name, err)
		}
		d.operators[i] = id
		fmt.Fprintf(d.out, "registered %-8s %s epoch=%s\n", name, id.Address, epoch)
	}
	return nil
}

func (d *demo) addresses() [pool.PoolSize]string {
	var out [pool.PoolSize]string
	for i, id := range d.operators {
		out[i] = id.Address
	}
	return out
}

// create runs InitCreation and FinalizeCreation with operator 0 as creator
// and returns the pool address.
func (d *demo) create(ctx context.Context, id pool.PoolID) (string, error) {
	poolIdentity, err := d.a.signer.DeriveOperator(ctx, "pool/"+id.String())
	if err != nil {
		return "", err
	}
	codeHash := commitment.Message(d.a.engine.Hasher(), demoEnclaveCode)

	creator := d.operators[0]
	phase, err := d.a.engine.InitCreation(ctx, id, creator.Address, codeHash)
	if err != nil {
		return "", err
	}
	d.step("init creation", id, phase)

	c, err := d.a.engine.Get(id)
	if err != nil {
		return "", err
	}
	ops := d.addresses()
	digest := pool.CreationDigest(d.a.engine.Hasher(), id, c.IncrementalTxHash, poolIdentity.Address, codeHash, ops)
	sig, err := d.a.signer.SignDigest(ctx, creator.Handle, digest)
	if err != nil {
		return "", err
	}
	if phase, err = d.a.engine.FinalizeCreation(ctx, id, poolIdentity.Address, ops, sig); err != nil {
		return "", err
	}
	d.step("finalize creation", id, phase)
	return poolIdentity.Address, nil
}

func (d *demo) survivingPool(ctx context.Context, id pool.PoolID) error {
	poolAddress, err := d.create(ctx, id)
	if err != nil {
		return err
	}

	if err := d.a.ledger.Credit("depositor", 1_000); err != nil {
		return err
	}
	phase, err := d.a.engine.Deposit(ctx, id, "depositor", 600)
	if err != nil {
		return err
	}
	d.step("deposit 600", id, phase)
	if phase, err = d.a.engine.Withdraw(ctx, id, poolAddress, "receiver", 250); err != nil {
		return err
	}
	d.step("withdraw 250", id, phase)

	if phase, err = d.a.engine.ChallengeExecutor(ctx, id, []byte("prove state root 1")); err != nil {
		return err
	}
	d.step("challenge executor", id, phase)
	if phase, err = d.respondExecutor(ctx, id, []byte("state root 1")); err != nil {
		return err
	}
	d.step("executor responded", id, phase)

	// Nested dispute: the executor clock is suspended while watchdog 1 answers.
	if phase, err = d.a.engine.ChallengeExecutor(ctx, id, []byte("prove state root 2")); err != nil {
		return err
	}
	d.step("challenge executor", id, phase)
	d.clk.Advance(5)
	if phase, err = d.a.engine.ChallengeWatchdog(ctx, id, 1, []byte("co-sign state root 2")); err != nil {
		return err
	}
	d.step("challenge watchdog 1", id, phase)
	if phase, err = d.respondWatchdog(ctx, id, 1, []byte("co-signed")); err != nil {
		return err
	}
	d.step("watchdog responded", id, phase)
	if phase, err = d.respondExecutor(ctx, id, []byte("state root 2")); err != nil {
		return err
	}
	d.step("executor responded", id, phase)

	fmt.Fprintf(d.out, "balances pool=%d receiver=%d depositor=%d\n",
		d.a.ledger.Balance(poolAddress), d.a.ledger.Balance("receiver"), d.a.ledger.Balance("depositor"))
	return nil
}

func (d *demo) abandonedPool(ctx context.Context, id pool.PoolID) error {
	if _, err := d.create(ctx, id); err != nil {
		return err
	}
	phase, err := d.a.engine.ChallengeExecutor(ctx, id, []byte("prove state root 1"))
	if err != nil {
		return err
	}
	d.step("challenge executor", id, phase)

	d.clk.Advance(d.a.engine.TimeoutInterval() + 1)
	crashed, err := d.a.sweeper.RunOnce(ctx)
	if err != nil {
		return err
	}
	for _, cid := range crashed {
		c, err := d.a.engine.Get(cid)
		if err != nil {
			return err
		}
		d.step("swept", cid, c.Phase)
	}

	if _, err := d.a.engine.Deposit(ctx, id, "depositor", 1); err != nil {
		fmt.Fprintf(d.out, "deposit into crashed pool refused: %v\n", err)
	}
	return nil
}

func (d *demo) respondExecutor(ctx context.Context, id pool.PoolID, response []byte) (pool.Phase, error) {
	c, err := d.a.engine.Get(id)
	if err != nil {
		return pool.PhaseNone, err
	}
	digest := pool.ExecutorResponseDigest(d.a.engine.Hasher(), id, c.DisputeHash, response)
	sig, err := d.a.signer.SignDigest(ctx, d.operators[c.ExecutiveOperator].Handle, digest)
	if err != nil {
		return pool.PhaseNone, err
	}
	return d.a.engine.ExecutorResponse(ctx, id, response, sig)
}

func (d *demo) respondWatchdog(ctx context.Context, id pool.PoolID, slot int, response []byte) (pool.Phase, error) {
	c, err := d.a.engine.Get(id)
	if err != nil {
		return pool.PhaseNone, err
	}
	digest := pool.WatchdogResponseDigest(d.a.engine.Hasher(), id, c.DisputeHash, slot, response)
	sig, err := d.a.signer.SignDigest(ctx, d.operators[slot].Handle, digest)
	if err != nil {
		return pool.PhaseNone, err
	}
	return d.a.engine.WatchdogResponse(ctx, id, slot, response, sig)
}

func (d *demo) step(label string, id pool.PoolID, phase pool.Phase) {
	fmt.Fprintf(d.out, "%-22s pool=%s phase=%s\n", label, id, phase)
}
