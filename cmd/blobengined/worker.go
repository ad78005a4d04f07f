package main

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hoku-labs/blobengine/core"
	"github.com/hoku-labs/blobengine/internal/content"
	"github.com/hoku-labs/blobengine/internal/resolver"
)

// epochClock is the standalone binary's own logical clock: with no host
// chain driving DebitAccounts externally, this process advances the epoch
// itself on a fixed tick, the way a local devnet stands in for consensus.
type epochClock struct {
	epoch int64
}

func (c *epochClock) current() core.ChainEpoch {
	return core.ChainEpoch(atomic.LoadInt64(&c.epoch))
}

func (c *epochClock) tick() core.ChainEpoch {
	return core.ChainEpoch(atomic.AddInt64(&c.epoch, 1))
}

// runEpochTicker calls DebitAccounts once per tick, settling every account's
// committed credit and reaping expired subscriptions, until ctx is canceled.
func runEpochTicker(ctx context.Context, ledger *core.Ledger, clock *epochClock, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			epoch := clock.tick()
			if err := ledger.DebitAccounts(epoch); err != nil {
				log.WithError(err).Warn("debit_accounts failed")
			}
		}
	}
}

// runResolverWorker drives client against the engine's added queue: every
// tick it hands each outstanding (hash, source) pair to the resolver and
// feeds the terminal verdict back through SetBlobPending/FinalizeBlob for
// every subscription that source is serving. A real deployment would swap
// client for an Iroh-backed implementation; cmd/blobengined ships
// resolver.MockClient so the full added -> pending -> resolved/failed cycle
// runs end-to-end without an external network, mirroring the teacher's
// practice of shipping a local stand-in behind the same interface a
// production backend implements.
func runResolverWorker(ctx context.Context, ledger *core.Ledger, client resolver.Client, clock *epochClock, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollAddedBlobs(ctx, ledger, client, clock)
		}
	}
}

func pollAddedBlobs(ctx context.Context, ledger *core.Ledger, client resolver.Client, clock *epochClock) {
	for _, entry := range ledger.GetAddedBlobs(0) {
		blob, err := ledger.GetBlob(entry.Hash)
		if err != nil {
			continue
		}
		for _, ss := range entry.Subscribers {
			fetchOne(ctx, ledger, client, clock, entry.Hash, blob, ss)
		}
	}
}

func fetchOne(ctx context.Context, ledger *core.Ledger, client resolver.Client, clock *epochClock, hash core.Hash, blob *core.Blob, ss core.SourcedSubscriber) {
	ids := subscriptionIDsForSource(blob, ss.Subscriber, ss.Source)
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := ledger.SetBlobPending(ss.Source, ss.Subscriber, hash, id); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"blob": content.String(hash), "subscriber": ss.Subscriber.String(),
			}).Warn("set_blob_pending failed")
			return
		}
	}

	req := resolver.Request{Hash: hash, Size: blob.Size, Source: ss.Source}
	subscriber := ss.Subscriber
	source := ss.Source
	cb := func(cbCtx context.Context, _ core.Hash, status resolver.Status) error {
		epoch := clock.current()
		engineStatus := resolver.EngineStatus(status)
		for _, id := range ids {
			if err := ledger.FinalizeBlob(subscriber, hash, id, engineStatus, epoch); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"blob": content.String(hash), "subscriber": subscriber.String(), "status": engineStatus.String(),
				}).Warn("finalize_blob failed")
			}
		}
		return nil
	}
	if err := client.Fetch(ctx, req, cb); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"blob": content.String(hash), "source": source.String(),
		}).Warn("resolver fetch failed")
	}
}

// subscriptionIDsForSource lists every non-failed subscription id subscriber
// holds against blob under source, the set fetchOne's SetBlobPending/
// FinalizeBlob calls must cover together since they all share one
// resolver.Request.
func subscriptionIDsForSource(blob *core.Blob, subscriber core.Address, source core.PublicKey) []core.SubscriptionId {
	group, ok := blob.Subscribers[subscriber]
	if !ok {
		return nil
	}
	var ids []core.SubscriptionId
	for id, sub := range group.Subscriptions {
		if sub.Source == source && !sub.Failed {
			ids = append(ids, id)
		}
	}
	return ids
}
