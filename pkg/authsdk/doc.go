/*
Package authsdk is the outbound gateway to the remote authentication API.

# Overview

Every call goes through Client.Do, which owns the one cross-cutting rule of
the gateway: a request rejected with 401 Unauthorized triggers a single
refresh of the session credential followed by exactly one resend of the
same request.

	client := authsdk.NewClient("http://localhost:7000/api/v1")
	client.OnSessionExpired = func(ctx context.Context) { sessions.Clear(ctx) }

	profile, err := client.Profile(ctx)
	if errors.Is(err, authsdk.ErrSessionExpired) {
		// refresh failed or the retried request was rejected again
	}

# Session credentials

The session lives in HTTP cookies issued by the server. The Client keeps
them in a cookie jar (public suffix aware) and never sees the refresh
credential as a value; POST /auth/refresh-token rotates it in place.

# Refresh protocol

 1. The failing request is marked as retried. The mark lives on that
    Request value, so independent requests each get their own retry.
 2. The refresh call is made. Concurrent refreshes are coalesced into one
    in-flight call shared by every waiting request.
 3. On refresh success the request is resent once with the same method,
    path, headers and body.
 4. On refresh failure, or when the resent request is rejected again,
    OnSessionExpired runs and the caller receives a SessionExpiredError
    wrapping the original failure (never the refresh error).

Requests built with NoRefresh (login, OTP, 2FA completion, recovery flows)
never trigger a refresh: a 401 there means the credentials were wrong.

# Errors

  - APIError: the server answered with a non-2xx status.
  - TransportError: no response (network failure, timeout, local throttle).
  - SessionExpiredError: matches ErrSessionExpired and unwraps to the
    original failure.

# Thread Safety

A Client is safe for concurrent use. A Request must not be shared between
concurrent Do calls.
*/
package authsdk
