// Command vapidgen prints a fresh VAPID key pair for configuring web
// push. Run once and put the output in the server's environment.
package main

import (
	"fmt"
	"os"

	"github.com/dukerupert/fairshare/internal/push"
)

func main() {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate VAPID keys: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("FAIRSHARE_VAPID_PUBLIC_KEY=%s\n", pub)
	fmt.Printf("FAIRSHARE_VAPID_PRIVATE_KEY=%s\n", priv)
}
