package config

// SiteConfig holds overrides for a single host.
type SiteConfig struct {
	// Cookie is sent as the Cookie header, e.g. "name1=value1; name2=value2".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra request headers.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the depth bound. 0 keeps the global value.
	Depth int `yaml:"depth,omitempty"`

	// MaxURLs overrides the URL cap. 0 keeps the global value.
	MaxURLs int `yaml:"maxUrls,omitempty"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Proxy overrides the proxy URL. Ignored when the embedded Tor is used.
	Proxy string `yaml:"proxy,omitempty"`

	// Username and Password override the proxy credentials.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// IgnorePatterns are path globs never followed.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, are the only path globs followed.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .stackcrawl configuration file.
type File struct {
	// Sites maps hostnames (e.g. "example.com") to their overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every host unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host: the defaults with
// the host's own settings merged on top.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	site, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.Depth != 0 {
		result.Depth = site.Depth
	}
	if site.MaxURLs != 0 {
		result.MaxURLs = site.MaxURLs
	}
	if site.UserAgent != "" {
		result.UserAgent = site.UserAgent
	}
	if site.Proxy != "" {
		result.Proxy = site.Proxy
	}
	if site.Username != "" {
		result.Username = site.Username
		result.Password = site.Password
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range site.Headers {
			result.Headers[k] = v
		}
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}
	return result
}
