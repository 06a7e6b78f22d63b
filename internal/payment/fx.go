package payment

import (
	"github.com/smallbiznis/invoicecore/internal/payment/adapters"
	"github.com/smallbiznis/invoicecore/internal/payment/adapters/adyen"
	"github.com/smallbiznis/invoicecore/internal/payment/adapters/sandbox"
	"github.com/smallbiznis/invoicecore/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
	"github.com/smallbiznis/invoicecore/internal/payment/repository"
	paymentservice "github.com/smallbiznis/invoicecore/internal/payment/service"
	"github.com/smallbiznis/invoicecore/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			sandbox.NewFactory(),
			stripe.NewFactory(),
			adyen.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(func(s *paymentservice.Service) paymentdomain.Service { return s }),
	fx.Provide(webhook.NewService),
)
