// Package proxy performs guarded outbound GET requests on behalf of the
// dashboard.
//
// Each Fetch resolves a target, checks it with the egress guard, and makes
// exactly one GET with a fixed timeout. No request body or client headers
// are forwarded, redirects are returned rather than followed, and nothing is
// retried. Failures are typed so the HTTP layer can map them:
//
//	res, err := gw.Fetch(ctx, proxy.Request{URL: "http://meter.local/status"})
//	switch {
//	case errors.Is(err, proxy.ErrInvalidTarget): // 400
//	case errors.Is(err, proxy.ErrForbidden):     // 403
//	case errors.Is(err, proxy.ErrTimeout):       // 502, code proxy_timeout
//	case errors.Is(err, proxy.ErrProxy):         // 502
//	}
package proxy
