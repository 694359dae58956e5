// Command create-selfsigned-cert writes a private key and a self-signed
// certificate for a host, for local TLS endpoints such as an OAuth redirect.
package main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}
