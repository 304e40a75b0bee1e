package era

import (
	"fmt"
	"maps"
	"slices"
)

// DefaultMirrors lists public era1 mirrors per network in order of
// preference.
var DefaultMirrors = map[string][]string{
	"mainnet": {
		"https://mainnet.era1.nimbus.team/",
		"https://era1.ethportal.net/",
		"https://era.ithaca.xyz/era1/index.html",
	},
	"sepolia": {
		"https://sepolia.era1.nimbus.team/",
	},
}

// Networks returns the networks with default mirrors.
func Networks() []string {
	return slices.Sorted(maps.Keys(DefaultMirrors))
}

// Mirrors returns the default mirrors for network.
func Mirrors(network string) ([]string, error) {
	m, ok := DefaultMirrors[network]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
	return slices.Clone(m), nil
}
