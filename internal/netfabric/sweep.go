package netfabric

import (
	"context"
	"log/slog"
)

// ruleTagPrefix marks every firewall rule this package installs, see
// FirewallRule.comment.
const ruleTagPrefix = "rik/"

// SweepOrphans removes tap devices and firewall rules left behind by a
// prior crashed agent run. It runs once at agent startup, before the agent
// accepts scheduling messages. known holds the instance IDs the agent
// considers live; anything tagged with an instance ID not in known is
// removed. The agent persists no instance state, so known is always empty
// on a cold start, making this a full clean-slate sweep.
func SweepOrphans(ctx context.Context, ops HostOps, known map[string]bool, logger *slog.Logger) {
	rules, err := ops.ListTaggedRules(ctx, ruleTagPrefix)
	if err != nil {
		logger.Warn("orphan sweep: list firewall rules failed", "error", err)
	}
	for _, rule := range rules {
		if known[rule.InstanceID] {
			continue
		}
		if err := ops.RuleDel(ctx, rule); err != nil {
			logger.Warn("orphan sweep: rule delete failed", "instance_id", rule.InstanceID, "error", err)
			continue
		}
		logger.Info("orphan sweep: removed stale firewall rule", "instance_id", rule.InstanceID, "chain", rule.Chain)
	}

	taps, err := ops.ListTapsWithPrefix(ctx, tapPrefix)
	if err != nil {
		logger.Warn("orphan sweep: list taps failed", "error", err)
		return
	}

	liveNames := make(map[string]bool, len(known))
	for id := range known {
		liveNames[TapName(id)] = true
	}

	for _, tap := range taps {
		if liveNames[tap] {
			continue
		}
		if err := ops.TapDel(ctx, tap); err != nil {
			logger.Warn("orphan sweep: tap delete failed", "tap", tap, "error", err)
			continue
		}
		logger.Info("orphan sweep: removed stale tap", "tap", tap)
	}
}
