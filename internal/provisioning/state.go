package provisioning

// Credentials holds the generated secrets for this run. Values come from the
// secret store, so re-runs see the same bytes.
type Credentials struct {
	DBPassword    string
	SecretKey     string
	TokenPeppers  map[string]string
	AdminPassword string
}

// State holds the shared results of provisioning phases. It is progressively
// populated as each phase completes and read by later phases that depend on
// earlier results.
type State struct {
	// Populated by the credentials phase.
	Credentials Credentials

	// Populated by the settings phase.
	AdvertiseAddr string // host address embedded in config; falls back to loopback
	ServerName    string // proxy server name (configured or discovered)

	// Populated by the application phase.
	Version    string // resolved release version
	ReleaseDir string // directory of the active release

	// Populated by the admin phase.
	AdminSkipped bool // account creation skipped due to marker

	// Populated by the services phase.
	Units []string // installed and started unit names

	// Populated by the proxy phase.
	AccessURL string
}

// NewState creates an empty provisioning state.
func NewState() *State {
	return &State{
		Credentials: Credentials{TokenPeppers: make(map[string]string)},
	}
}
