// Package health provides the liveness and readiness endpoints of the
// recordflow HTTP API.
//
// Liveness (/health) reports that the process is up. Readiness (/ready)
// runs the registered checks, such as a ping of the Redis error log, and
// answers 503 while any critical check fails or the server is draining:
//
//	checker := health.NewChecker(version)
//	checker.RegisterCheck(health.PingCheck("redis", errorLog.Ping, time.Second))
//
//	router.GET("/health", checker.GinHealthHandler())
//	router.GET("/ready", checker.GinReadinessHandler())
package health
