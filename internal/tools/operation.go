// Package tools turns caller-supplied argument maps into SSH sessions,
// runs one remote operation per call, and reports every outcome as a
// response envelope. Nothing raised below this package escapes it.
package tools

import "strings"

// Operation names one of the three remote primitives.
type Operation string

const (
	OpExecute  Operation = "ssh_execute_command"
	OpUpload   Operation = "sftp_upload"
	OpDownload Operation = "sftp_download"
)

// Operations lists every operation in display order.
var Operations = []Operation{OpExecute, OpUpload, OpDownload}

// aliases maps the long-form operation names onto tool names.
var aliases = map[string]Operation{
	"execute-command":   OpExecute,
	"transfer-upload":   OpUpload,
	"transfer-download": OpDownload,
	"exec":              OpExecute,
	"upload":            OpUpload,
	"download":          OpDownload,
}

// ParseOperation resolves a tool name or alias.
func ParseOperation(name string) (Operation, bool) {
	name = strings.TrimSpace(name)
	for _, op := range Operations {
		if string(op) == name {
			return op, true
		}
	}
	op, ok := aliases[strings.ToLower(name)]
	return op, ok
}

// Label is the prefix used in failure text, e.g. "SFTP upload error: ...".
func (o Operation) Label() string {
	switch o {
	case OpExecute:
		return "SSH"
	case OpUpload:
		return "SFTP upload"
	case OpDownload:
		return "SFTP download"
	default:
		return string(o)
	}
}
