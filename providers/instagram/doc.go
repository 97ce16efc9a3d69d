// Package instagram implements providers.TokenExchanger for Instagram Login.
//
// The authorization-code exchange is a form POST to the token endpoint and is
// done by hand rather than through oauth2.Config.Exchange: the endpoint
// returns user_id as a 17-digit JSON number, and oauth2 would decode it into a
// float64 and lose precision. The id is kept as the exact text the provider
// sent, whether a number or a string. The long-lived exchange is a GET against the
// graph endpoint with grant_type=ig_exchange_token.
//
// Example usage:
//
//	provider, err := instagram.NewProvider(&instagram.Config{
//	    ClientID:     "your-app-id",
//	    ClientSecret: "your-app-secret",
//	    RedirectURL:  "https://app.example.com/api/auth/instagram/callback",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	short, err := provider.ExchangeCode(ctx, code)
//	long, err := provider.ExchangeLongLived(ctx, short.AccessToken)
package instagram
