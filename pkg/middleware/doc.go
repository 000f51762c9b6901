// Package middleware provides HTTP middleware for authentication and rate
// limiting.
//
// AuthMiddleware verifies "Bearer <token>" headers with an
// auth.SessionVerifier and stores the session in the request context:
//
//	authMW := middleware.NewAuthMiddleware(verifier, false, logger)
//	api.Use(authMW.Handler)
//
// RateLimitMiddleware keys callers by user id once authenticated and by
// client IP otherwise. Use RateLimiter for a single instance or
// DistributedRateLimiter to share counters through Redis:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, nil, "")
//	api.Use(middleware.NewRateLimitMiddleware(limiter, logger).Handler)
//
// Limiter errors fail open.
package middleware
