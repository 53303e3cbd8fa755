// Command token mints a development token for the realm gateway.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dkeye/realm/internal/adapters/auth"
	"github.com/dkeye/realm/internal/config"
	"github.com/dkeye/realm/internal/domain"
	"github.com/spf13/pflag"
)

func main() {
	user := pflag.StringP("user", "u", "", "user id to put in the token")
	ttl := pflag.Duration("ttl", 24*time.Hour, "token lifetime")
	secret := pflag.String("secret", "", "signing secret (defaults to jwt_secret from config)")
	pflag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		pflag.Usage()
		os.Exit(2)
	}
	if *secret == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		*secret = cfg.JWTSecret
	}

	v := auth.NewVerifier(*secret)
	v.TTL = *ttl
	tok, exp, err := v.Sign(domain.UserID(*user))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
}
