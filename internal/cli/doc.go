// Package cli implements the remoteops command-line interface.
//
// Every front end funnels into the same tools.Toolkit, so a command run from
// a shell, piped through `call`, or sent to `serve` produces the same
// envelope.
//
// # Command Structure
//
//	remoteops exec [flags] -- <command>     - Run a command remotely
//	remoteops upload <local> <remote>       - Upload one file over SFTP
//	remoteops download <remote> <local>     - Download one file over SFTP
//	remoteops call <tool>                   - One JSON request on stdin
//	remoteops serve                         - Line-delimited JSON requests
//	remoteops tools                         - List tools and arguments
//	remoteops hosts                         - List ~/.ssh/config aliases
//	remoteops config [init|show|set|path]   - Manage the config file
//
// # Flag Handling
//
// Global flags (--config, --verbose, --no-color, --json) live on the root
// command. Commands are built per App so tests get a fresh tree with their
// own streams and dialer.
package cli
