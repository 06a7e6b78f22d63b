package coupon

import (
	"github.com/smallbiznis/invoicecore/internal/coupon/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("coupon",
	fx.Provide(repository.Provide),
)
