package imagecache

// Rules tunes candidate discovery. They are data so the heuristics can be
// adjusted through configuration.
type Rules struct {
	Version             string   `mapstructure:"version"`
	OpenGraphProperties []string `mapstructure:"open_graph_properties"`
	TwitterNames        []string `mapstructure:"twitter_names"`
	LinkRels            []string `mapstructure:"link_rels"`
	ImageAttrs          []string `mapstructure:"image_attrs"`
	Denylist            []string `mapstructure:"denylist"`
}

// DefaultRules returns the built-in discovery rules.
func DefaultRules() Rules {
	return Rules{
		Version:             "2024-1",
		OpenGraphProperties: []string{"og:image", "og:image:url", "og:image:secure_url"},
		TwitterNames:        []string{"twitter:image"},
		LinkRels:            []string{"image_src"},
		ImageAttrs:          []string{"src", "data-src", "data-lazy-src", "data-original"},
		Denylist:            []string{"logo", "icon", "sprite", "placeholder", "spinner"},
	}
}
