// Package session owns the process-wide authentication state.
//
// A Bootstrapper observes the identity provider, synchronises the signed-in
// principal with the backend (login, falling back to signup on 404), fetches
// the app's public settings and publishes SessionState snapshots to
// subscribers. Gate turns a snapshot into the rendering decision.
package session
