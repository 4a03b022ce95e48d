package tools

// Arg describes one named argument of a tool.
type Arg struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description" yaml:"description"`
}

// Tool describes an operation for front ends that list or validate calls.
type Tool struct {
	Name        Operation `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Args        []Arg     `json:"arguments" yaml:"arguments"`
}

func connectionArgs(d Defaults) []Arg {
	return []Arg{
		{Name: "host", Type: "string", Required: true, Description: "Hostname or IP of the remote machine"},
		{Name: "username", Type: "string", Required: true, Description: "Login user"},
		{Name: "password", Type: "string", Description: "Password, also used as the key passphrase"},
		{Name: "privateKey", Type: "string", Description: "Path to a private key file"},
		{Name: "port", Type: "integer", Default: d.Port, Description: "SSH port"},
		{Name: "timeout", Type: "integer", Default: int(d.Timeout.Seconds()), Description: "Connect and command timeout in seconds"},
	}
}

// Tools returns the catalogue of operations with defaults from d.
func Tools(d Defaults) []Tool {
	withConn := func(args ...Arg) []Arg {
		return append(args, connectionArgs(d)...)
	}
	return []Tool{
		{
			Name:        OpExecute,
			Description: "Run a shell command on a remote host and return stdout, stderr and the exit code",
			Args: withConn(
				Arg{Name: "command", Type: "string", Required: true, Description: "Command line, passed to the remote shell verbatim"},
			),
		},
		{
			Name:        OpUpload,
			Description: "Upload one local file to a remote path over SFTP",
			Args: withConn(
				Arg{Name: "local_path", Type: "string", Required: true, Description: "File to read locally"},
				Arg{Name: "remote_path", Type: "string", Required: true, Description: "Destination path; its directory must exist"},
			),
		},
		{
			Name:        OpDownload,
			Description: "Download one remote file to a local path over SFTP",
			Args: withConn(
				Arg{Name: "local_path", Type: "string", Required: true, Description: "Destination path; its directory must exist"},
				Arg{Name: "remote_path", Type: "string", Required: true, Description: "File to read on the remote host"},
			),
		},
	}
}
