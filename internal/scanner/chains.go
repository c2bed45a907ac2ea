package scanner

// Chain describes one asset-registry chain: its SS58 network prefix and
// the candidate RPC endpoints raced on every scan.
type Chain struct {
	Name      string
	Prefix    uint16
	Endpoints []string
}

// DefaultChains is the scanned chain set.
var DefaultChains = []Chain{
	{
		Name:   "statemine",
		Prefix: 2,
		Endpoints: []string{
			"wss://statemine-rpc.polkadot.io",
			"wss://statemine.api.onfinality.io/public-ws",
			"wss://statemine-rpc.dwellir.com",
		},
	},
	{
		Name:   "unique",
		Prefix: 7391,
		Endpoints: []string{
			"wss://ws.unique.network",
			"wss://unique.api.onfinality.io/public-ws",
		},
	},
	{
		Name:   "quartz",
		Prefix: 255,
		Endpoints: []string{
			"wss://ws-quartz.unique.network",
			"wss://quartz.api.onfinality.io/public-ws",
		},
	},
}
