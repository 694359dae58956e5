// Command backup-onedrive archives pictures and videos from a OneDrive
// account into a dated folder tree on local disk.
package main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}
