package banner

import (
	"fmt"

	"github.com/sylphx/lens/pkg/config"
)

const banner = `
██╗     ███████╗███╗   ██╗███████╗
██║     ██╔════╝████╗  ██║██╔════╝
██║     █████╗  ██╔██╗ ██║███████╗
██║     ██╔══╝  ██║╚██╗██║╚════██║
███████╗███████╗██║ ╚████║███████║
╚══════╝╚══════╝╚═╝  ╚═══╝╚══════╝
`

// Print renders the startup banner from an effective config.
func Print(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config sources: %s\n", src)
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/lens           - Query/mutation envelope (JSON: type, path, input, select)")
	fmt.Println("GET  /v1/lens/subscribe - SSE subscription stream (?path=message&id=<id>)")
	fmt.Println("GET  /healthz, /readyz  - Probes")
	fmt.Println("GET  /metrics           - Prometheus metrics")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/lens' -d '{\"type\":\"query\",\"path\":[\"message\",\"list\"]}'\n", addr)
	fmt.Printf("curl -N 'http://localhost%s/v1/lens/subscribe?path=message&id=m1'\n", addr)
}
