package cmd

import (
	"fmt"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

const banner = `
  ____       _           _               _
 |  _ \ _ __(_)_   _____| |    ___   ___| | _____ _ __
 | | | | '__| \ \ / / _ \ |   / _ \ / __| |/ / _ \ '__|
 | |_| | |  | |\ V /  __/ |__| (_) | (__|   <  __/ |
 |____/|_|  |_| \_/ \___|_____\___/ \___|_|\_\___|_|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Personal File Vault - Version %s\x1b[0m\n\n", Version)
}
