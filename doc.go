// Package era retrieves and verifies era1 history archives.
//
// An era1 file packs up to 8192 consecutive blocks (header, body, receipts
// and total difficulty) into an e2store container closed by an accumulator
// root and a block index. Mirrors publish these files next to a checksum
// manifest. This package provides a unified high-level API through [Client]
// for downloading a network's archives with digest verification and mirror
// fallback, and for checking local files.
//
// For lower-level access use the subpackages:
//   - e2store: the type-length-value entry container
//   - era1: record codecs, block tuples, archive builder and reader
//   - mirror: directory listings and checksum manifests
//   - fetch: verified streaming of one file
//   - download: the multi-file, multi-mirror orchestrator
//
// # Quick Start
//
// Download the first ten mainnet archives:
//
//	c, err := era.NewClient(era.WithDir("/var/lib/era1"), era.WithLimit(10))
//	if err != nil {
//	    return err
//	}
//	for f, err := range c.Download(ctx, "mainnet") {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(f.Path, f.Digest)
//	}
//
// Files already present in the directory with a matching digest are reused
// without network access, so an interrupted download can simply be re-run.
//
// Verify the accumulator of a local file:
//
//	info, err := c.Verify(ctx, "/var/lib/era1/mainnet-00000-5ec1ffb8.era1")
package era
