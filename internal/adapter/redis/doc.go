// Package redis persists the identity token set in Redis so a restarted
// companion can restore the signed-in principal.
package redis
