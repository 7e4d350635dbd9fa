// Package identity implements the OpenID Connect identity provider the
// session bootstrapper observes.
package identity
