// module.go: fx integration for dynconf
//
// NewModule provides a *dynconf.Manager to an fx application and closes its
// storage on stop. Bootstrap applies the stored configuration to a target
// from the container when the application starts; failures are logged and
// startup continues, since the storage may not be provisioned yet.
//
//	fx.New(
//	    fx.Supply(app),
//	    dynconffx.NewModule(dynconf.WithItemsSource(dynconf.ItemsFile{Path: "items.yaml"})),
//	    dynconffx.Bootstrap[*dynconf.Container](),
//	)
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconffx

import (
	"context"
	"fmt"

	"github.com/agilira/dynconf"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ModuleName is the fx module name.
const ModuleName = "dynconf"

// NewModule provides a *dynconf.Manager built from opts. A *zap.Logger found
// in the container is used unless opts set one.
//
//nolint:ireturn // fx.Option is the standard return type for Fx modules
func NewModule(opts ...dynconf.Option) fx.Option {
	return fx.Module(ModuleName,
		fx.Provide(
			fx.Annotate(
				func(lifecycle fx.Lifecycle, logger *zap.Logger) (*dynconf.Manager, error) {
					var all []dynconf.Option
					if logger != nil {
						all = append(all, dynconf.WithLogger(logger))
					}
					all = append(all, opts...)

					mgr, err := dynconf.New(all...)
					if err != nil {
						return nil, fmt.Errorf("failed to create config manager: %w", err)
					}

					lifecycle.Append(fx.Hook{
						OnStop: func(context.Context) error {
							return mgr.Close()
						},
					})
					return mgr, nil
				},
				fx.ParamTags("", `optional:"true"`),
			),
		),
	)
}

// Bootstrap applies the fetched configuration to the T from the container on start.
//
//nolint:ireturn // fx.Option is the standard return type for Fx modules
func Bootstrap[T any]() fx.Option {
	return fx.Invoke(func(lifecycle fx.Lifecycle, mgr *dynconf.Manager, target T) {
		lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := mgr.Configure(ctx, target, nil); err != nil {
					mgr.Logger().Warn("dynamic configuration not applied",
						zap.String("target", fmt.Sprintf("%T", target)),
						zap.Error(err))
				}
				return nil
			},
		})
	})
}
