// Package podium provides a client for the Podium JSON/HTTP API.
//
// The client handles the parts of the protocol every resource shares:
// session authentication, timestamp conversion and pagination parameters.
// Individual collections are reached through Resource handles.
//
// # Usage
//
//	client, err := podium.NewClient(
//		"https://podium.example.com/api/v1/",
//		podium.WithLogger(logger),
//		podium.WithTimeout(30*time.Second),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	auth, err := client.Authenticate(ctx, "admin", "secret")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if !auth.Found {
//		log.Fatal("no system account")
//	}
//
//	members := client.Resource("members")
//	page, err := members.List(ctx, podium.Params{"status": "active"}, podium.NewPaginator(1, 50))
//
// # Authentication
//
// Authenticate stores the returned token in the client's TokenStore. Every
// later request carries it in the "Authentication" header. The header name
// is part of Podium's protocol and intentionally differs from the standard
// "Authorization" header.
//
// Without a token, requests are refused locally with ErrInvalidToken and
// nothing is sent. When the API answers 400 with apiCode INVALID_TOKEN the
// token is dropped, so the next request is refused locally too.
//
// # Timestamps
//
// Podium sends timestamps as "YYYY-M-D H:MM:SS" strings in UTC. Response
// payloads are passed through ToNative, which turns every such string into a
// time.Time; request bodies go through ToWire, which formats time.Time values
// back as "YYYY-MM-DD HH:MM:SS". Strings that merely look like dates are left
// alone. Typed structs can use Timestamp fields together with Decode.
//
// # Error Handling
//
//   - ErrInvalidToken: no session token, request not sent
//   - APIError: the API answered with a non-2xx status
//   - NetworkError: no response was received
//   - DecodeError: a 2xx response body was not valid JSON
//   - RequestError: the request could not be built, nothing was sent
//
// Nothing is retried.
//
//	var apiErr *podium.APIError
//	if errors.As(err, &apiErr) && apiErr.IsNotFound() {
//		// Handle missing entity
//	}
package podium
