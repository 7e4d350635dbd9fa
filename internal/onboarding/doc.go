// Package onboarding implements the patient and doctor onboarding wizards:
// multi-step forms edited by dot-path, validated one step at a time and
// submitted to the backend as a user update followed by a role profile.
package onboarding
