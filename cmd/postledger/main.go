package main

import (
	"context"
	"log"

	"postledger/bot"
	"postledger/core/bootstrap"
	corecmd "postledger/core/cmd"
	coreconfig "postledger/core/config"
	coretelegram "postledger/core/telegram"
	"postledger/core/telegram/router"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config/config.yaml",
		Build:             build,
	})
	if err != nil {
		log.Fatalf("postledger: %v", err)
	}
}

func build(cfg *coreconfig.Config) (coretelegram.RunOptions, error) {
	res, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return coretelegram.RunOptions{}, err
	}

	flow := bot.NewFlow(res.Store, bot.NewSessions(), cfg.Ledger.DuplicatePolicy)
	handlers := bot.NewHandlers(flow, res.Store, res.Exporter)

	reg := coretelegram.NewRegistry()
	handlers.Register(reg)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: cfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(handlers, reg, router.TextOptions{})...)

	opts := coretelegram.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(cfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			if res.Notifier != nil {
				res.Notifier.Bind(rt.Bot, rt.Dispatcher)
			}
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			if res.DB != nil {
				return res.DB.Close()
			}
			return nil
		},
	}
	return opts, nil
}
