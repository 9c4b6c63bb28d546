// Package httpserver runs the paykit HTTP endpoints with graceful shutdown.
//
// Server.Run blocks until its context is cancelled and then drains in-flight
// requests within the shutdown timeout, which makes it a natural member of an
// errgroup next to the job scheduler. HealthCheckHandler reports dependency
// probes such as pg.Healthcheck and redis.Healthcheck as JSON.
package httpserver
