package trigger_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/autotrader/internal/application/trigger"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/stretchr/testify/assert"
)

func pct(v float64) *float64 { return &v }

func TestEvaluate(t *testing.T) {
	now := time.Now()
	open := trigger.Subject{EntryPrice: 1.0, RemainingSize: 1, OpenedAt: now.Add(-2 * time.Minute)}

	tests := []struct {
		name  string
		subj  trigger.Subject
		price float64
		rules trigger.Rules
		fire  bool
		kind  domain.TriggerKind
	}{
		{"take profit at threshold", open, 1.10, trigger.Rules{TPPct: pct(10)}, true, domain.TriggerTakeProfit},
		{"take profit above", open, 1.15, trigger.Rules{TPPct: pct(10)}, true, domain.TriggerTakeProfit},
		{"below take profit", open, 1.05, trigger.Rules{TPPct: pct(10)}, false, 0},
		{"stop loss", open, 0.94, trigger.Rules{SLPct: pct(5)}, true, domain.TriggerStopLoss},
		{"tp wins over sl ordering", open, 1.2, trigger.Rules{TPPct: pct(10), SLPct: pct(5)}, true, domain.TriggerTakeProfit},
		{"disabled tp/sl", open, 3.0, trigger.Rules{}, false, 0},
		{"max hold fires under gate", open, 1.2, trigger.Rules{MaxHold: time.Minute, MaxHoldPnLGate: true, MaxHoldPnLThreshold: 50}, true, domain.TriggerMaxHold},
		{"max hold gated at 60%", open, 1.6, trigger.Rules{MaxHold: time.Minute, MaxHoldPnLGate: true, MaxHoldPnLThreshold: 50}, false, 0},
		{"max hold ungated at 60%", open, 1.6, trigger.Rules{MaxHold: time.Minute, MaxHoldPnLGate: false}, true, domain.TriggerMaxHold},
		{"max hold not elapsed", open, 1.0, trigger.Rules{MaxHold: time.Hour}, false, 0},
		{"frozen is exempt", trigger.Subject{EntryPrice: 1, RemainingSize: 1, OpenedAt: open.OpenedAt, Frozen: true}, 2.0, trigger.Rules{TPPct: pct(10), MaxHold: time.Second}, false, 0},
		{"no remaining size", trigger.Subject{EntryPrice: 1, OpenedAt: open.OpenedAt}, 2.0, trigger.Rules{TPPct: pct(10)}, false, 0},
		{"zero entry", trigger.Subject{RemainingSize: 1}, 2.0, trigger.Rules{TPPct: pct(10)}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := trigger.Evaluate(tt.subj, tt.price, now, tt.rules)
			assert.Equal(t, tt.fire, d.Fire)
			if tt.fire {
				assert.Equal(t, tt.kind, d.Trigger.Kind)
			}
		})
	}
}

func TestEvaluate_MaxHoldDescribesSeconds(t *testing.T) {
	now := time.Now()
	d := trigger.Evaluate(
		trigger.Subject{EntryPrice: 1, RemainingSize: 1, OpenedAt: now.Add(-time.Hour)},
		1.0, now, trigger.Rules{MaxHold: 90 * time.Second},
	)
	assert.True(t, d.Fire)
	assert.Equal(t, "Max hold 90s", d.Trigger.Describe())
}

func TestRules_WithPosition(t *testing.T) {
	r := trigger.Rules{TPPct: pct(10), SLPct: pct(5), MaxHold: time.Minute}.WithPosition(pct(30), nil)
	assert.InDelta(t, 30.0, *r.TPPct, 1e-9)
	assert.Nil(t, r.SLPct)
	assert.Equal(t, time.Minute, r.MaxHold)
}
