/*
Package loadersdk provides a client for the hwidgate loader service.

# Overview

The gateway serves one protected artifact to callers whose hardware
identifier (HWID) is authorized in its registry. Client wraps that endpoint
and the health probes:

	client := loadersdk.NewClient("https://loader.example.com")

	body, err := client.Fetch(ctx, "abcd1234-ef56-7890-abcd-ef1234567890")
	if err != nil {
		var apiErr *loadersdk.Error
		if errors.As(err, &apiErr) && apiErr.Denied() {
			fmt.Println("denied:", apiErr.Body) // "not_authorized" or "expired"
		}
		return err
	}

# Error Handling

Any non-200 response is returned as *Error carrying the status code and the
short body the gateway wrote. Bodies are fixed tokens, never diagnostics:

  - 400: the HWID is malformed
  - 403: ReasonNotAuthorized or ReasonExpired
  - 500: the gateway is misconfigured
  - 502: neither upstream nor the fallback copy could be served

Transport failures are returned unchanged from the underlying http.Client.
*/
package loadersdk
