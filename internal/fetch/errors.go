package fetch

import (
	"context"
	"errors"
	"net"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// classifyTransportError maps a transport-level failure onto the closed error
// code set. Anything that is neither a timeout nor a DNS failure counts as a
// connection problem.
func classifyTransportError(err error) schemas.FetchErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return schemas.FetchErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return schemas.FetchErrTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return schemas.FetchErrDNS
	}
	return schemas.FetchErrConnection
}

// statusErrorCode maps a definitive non-success status onto an error code.
func statusErrorCode(status int) schemas.FetchErrorCode {
	if status >= 500 {
		return schemas.FetchErrHTTP5xx
	}
	if status >= 400 {
		return schemas.FetchErrHTTP4xx
	}
	return schemas.FetchErrConnection
}

func failure(result *schemas.FetchResult, code schemas.FetchErrorCode, message string) *schemas.FetchResult {
	result.Success = false
	result.Error = &schemas.FetchError{Code: code, Message: message}
	return result
}
