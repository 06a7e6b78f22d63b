package events

import (
	obsmetrics "github.com/smallbiznis/invoicecore/internal/observability/metrics"
	"go.uber.org/fx"
)

type observeParams struct {
	fx.In

	Bus     *Bus
	Metrics *obsmetrics.Metrics `optional:"true"`
}

var Module = fx.Module("events",
	fx.Provide(NewBus),
	fx.Provide(NewOutbox),
	fx.Provide(NewLogSink),
	fx.Provide(NewRelay),
	fx.Invoke(func(p observeParams) {
		if p.Metrics != nil {
			p.Bus.Subscribe(Observe(p.Metrics))
		}
	}),
)
