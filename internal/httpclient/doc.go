// Package httpclient provides the HTTP plumbing for tbtoken.
//
// [Transport] performs the two authentication calls, login and refresh,
// posting JSON to /api/auth/login and /api/auth/token and returning the raw
// response body. Non-2xx answers come back as [*StatusError], whose
// HTTPStatus method lets callers tell a rejected credential from a server
// failure.
//
// For API calls, [NewAuthenticatedClient] wraps the pooled transport from
// [NewClient] in an oauth2.Transport, so every request asks the token
// source for a bearer token:
//
//	client := httpclient.NewAuthenticatedClient(30*time.Second, guard.TokenSource(ctx))
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//	resp, err := client.Do(req)
//
// [RequestBuilder] stamps each request with a ULID in the X-Request-Id header.
package httpclient
