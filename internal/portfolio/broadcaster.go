package portfolio

import (
	"context"
	"log/slog"
	"time"

	"github.com/btcfolio/portfolio-engine/internal/metrics"
)

// RunSnapshotBroadcaster periodically refreshes the market and fee
// snapshots and pushes them to WebSocket clients. Provider errors are
// logged and counted; the loop keeps going, since a flaky upstream must not
// kill the feed. Returns when ctx is cancelled.
func RunSnapshotBroadcaster(ctx context.Context, hub *WSHub, prices MarketProvider, fees FeeProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		msg := WSMessage{Type: "snapshot", ObservedAt: time.Now().UTC()}

		snap, err := prices.Snapshot(ctx)
		if err != nil {
			metrics.SnapshotFetchErrors.WithLabelValues("price").Inc()
			slog.Warn("price snapshot refresh failed", "err", err)
		} else {
			msg.Prices = make(map[string]string, len(snap.Prices))
			for cur, p := range snap.Prices {
				msg.Prices[cur] = p.String()
			}
			msg.ObservedAt = snap.ObservedAt
		}

		feeSnap, err := fees.Snapshot(ctx)
		if err != nil {
			metrics.SnapshotFetchErrors.WithLabelValues("fee").Inc()
			slog.Warn("fee snapshot refresh failed", "err", err)
		} else {
			msg.FeeTiers = feeSnap.Tiers
			msg.PendingVBytes = feeSnap.PendingVBytes
		}

		if msg.Prices != nil || msg.FeeTiers != nil {
			hub.Broadcast(msg)
		}
	}
}
