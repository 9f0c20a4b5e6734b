package version

// Version is the agent version reported to the catalog service. Overridden at
// build time with -ldflags "-X github.com/Adda-Baaj/certless/pkg/version.Version=...".
var Version = "6.4.0"

// Source supplies the version string sent in X-Puppet-Version.
type Source interface {
	Version() string
}

// Static is a fixed version Source.
type Static string

func (s Static) Version() string { return string(s) }

// Build returns the Source for the compiled-in version.
func Build() Source { return Static(Version) }
