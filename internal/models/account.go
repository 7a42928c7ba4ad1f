package models

// ProviderAccount is an IPTV provider login. Kind is AccountXtream or
// AccountM3U; for m3u accounts URL is the playlist itself.
type ProviderAccount struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Kind     string `json:"kind" yaml:"kind"`
	URL      string `json:"url" yaml:"url"`
	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"-" yaml:"password"`
}
