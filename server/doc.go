// Package server implements the account-link flow for a third-party provider.
//
// Server.HandleCallback runs the authorization-code callback as a sequence of
// stages, each returning an error:
//
//  1. reject provider errors and incomplete requests
//  2. verify the signed CSRF state
//  3. exchange the code for a short-lived token, then for a long-lived one
//  4. resolve the first-party session
//  5. upsert the credential
//  6. subscribe the credential to the webhook (best effort)
//
// A fatal stage returns a *FlowError whose Reason becomes the Outcome; later
// stages never run. Server.StartLink issues the state and authorize URL that
// begin a flow.
//
// Example usage:
//
//	srv, err := server.New(provider, stateCodec, resolver, store, &server.Config{}, logger)
//	if err != nil {
//		return err
//	}
//	srv.SetWebhookSubscriber(subscriber)
//
//	outcome := srv.HandleCallback(ctx, server.AuthorizationRequest{Code: code, State: state}, cookie)
package server
