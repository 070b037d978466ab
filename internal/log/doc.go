// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// The SecureHandler masks:
//   - HTTP headers (Authorization, Cookie, Set-Cookie)
//   - scan tokens, secrets and collected cookie values
//   - values shaped like scan tokens, bearer tokens or private keys
//
// and rewrites tracking identifiers such as "GTM-ABC123" or "UA-1234-5"
// to "GTM-***" and "UA-***" wherever they appear in a message or a string
// attribute. Even in verbose mode no raw identifier reaches the output.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//
//	client := resty.New().SetLogger(log.NewRestyLogger(logger))
package log
