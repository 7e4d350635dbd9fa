package domain

// AppPublicSettings is the application's public configuration, keyed by app id.
type AppPublicSettings struct {
	ID             string         `json:"id"`
	PublicSettings map[string]any `json:"public_settings,omitempty"`
}
