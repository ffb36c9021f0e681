package api

import "github.com/okian/arena/pkg/logger"

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator sets the bearer token verifier. Without one every
// protected route answers 401.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithRefresher reloads judge assignments from the store on every request.
func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.refresher = r }
}

// WithInboundToken enables POST /api/v1/mirror/inbound for callers sending
// the token in the X-Inbound-Token header.
func WithInboundToken(token string) Option {
	return func(s *Server) { s.inboundToken = token }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
