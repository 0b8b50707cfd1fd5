/*
Package adminsdk is the client gateway to the Sahtee admin API.

# Overview

Every call to the admin API goes through a Client. The Client owns the
session token, checks it before each authenticated call, enforces a
per-attempt timeout, retries transient failures, classifies the response
body and coordinates token refresh across concurrent callers.

	client := adminsdk.NewClient("https://api.sahtee.example/api")

	session, err := client.Login(ctx, "admin@sahtee.example", password)

	page, err := client.ListPage(ctx, adminsdk.Doctor, 1, 50)

	doc, err := client.GetRecord(ctx, adminsdk.Hospital, "42")
	if doc == nil && err == nil {
		// not found
	}

# Token Refresh

When a call gets a 401, the first caller starts a single refresh by posting
the stale token to Paths.Refresh. Callers that get a 401 meanwhile wait and
are released in arrival order with the same result. Each request is then
re-issued once with the new token. If the refresh fails the stored token is
cleared, OnLoginRequired runs, and every waiter receives the same
KindRefreshFailed error.

# Retries

KindTimeout and KindNetwork failures are retried up to MaxAttempts with a
linear backoff of RetryDelay per attempt. Each attempt has its own Timeout.
Caller cancellation surfaces as KindAborted and is never retried.

# Response Classification

Successful bodies become a Payload of kind JSON, Binary, Text or Empty.
Binary is chosen from a declared binary content type, from the file
signature table when the content type is missing, or from a file endpoint
path (/license, /image, /file).

# Error Handling

All failures are *Error values:

	if adminsdk.IsKind(err, adminsdk.KindValidation) {
		var apiErr *adminsdk.Error
		errors.As(err, &apiErr)
		for field, msgs := range apiErr.Fields {
			fmt.Println(field, msgs)
		}
	}

# Thread Safety

A Client is safe for concurrent use once configured.
*/
package adminsdk
