// Package link serves the Instagram account-link endpoints of the web
// application: the start endpoint that sends a signed-in user to Instagram's
// consent page, and the callback that finishes the link and redirects back
// into the app.
//
// The flow itself lives in package server; this package owns configuration
// and the HTTP adapter around it.
//
//	cfg, err := link.LoadConfigFromEnv()
//	...
//	h, err := link.NewHandler(srv, link.HandlerConfig{
//		AppURL:     cfg.App.URL,
//		CookieName: cfg.Identity.CookieName,
//		Proxy:      cfg.ProxyPolicy(),
//	}, logger)
//	http.ListenAndServe(cfg.ListenAddr, h.Routes(inst.MetricsHandler()))
package link
