package domain

// StarterPort is the port of the first bot in the starter fleet; the rest
// follow contiguously.
const StarterPort = 8081

var starterNames = []string{
	"AlphaBot", "BetaBot", "GammaBot", "DeltaBot", "EpsilonBot",
	"ZetaBot", "EtaBot", "ThetaBot", "IotaBot", "KappaBot",
	"LambdaBot", "MuBot", "NuBot", "XiBot", "OmicronBot",
	"PiBot", "RhoBot", "SigmaBot", "TauBot", "UpsilonBot",
	"PhiBot", "ChiBot", "PsiBot",
}

var starterSpecialties = []string{
	"Health Checks", "Latency Probing", "Port Inventory", "DNS Resolution", "TLS Auditing",
	"HTTP Benchmarking", "Packet Tracing", "Route Mapping", "Bandwidth Sampling", "Cache Warming",
	"Log Shipping", "Config Drift", "Certificate Expiry", "Service Discovery", "Synthetic Checkout",
	"Queue Draining", "Schema Validation", "Metrics Scraping", "Clock Sync", "Storage Scrubbing",
	"Replica Lag", "Canary Analysis", "Chaos Drills",
}

// StarterFleet returns the fleet used to seed an empty store: 23 online bots
// on ports 8081-8103, each with its own specialty.
func StarterFleet() []Bot {
	bots := make([]Bot, len(starterNames))
	for i, name := range starterNames {
		bots[i] = Bot{
			Name:      name,
			Status:    BotOnline,
			Port:      StarterPort + i,
			Specialty: starterSpecialties[i],
			Uptime:    UptimeString(0, 0),
		}
	}
	return bots
}
