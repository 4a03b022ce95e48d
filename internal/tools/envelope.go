package tools

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/remoteops/pkg/sshutil"
)

// TextBlock is one entry of an envelope's content list.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Envelope is the only thing a caller ever sees from an operation.
// IsError is true iff the operation failed before producing a result.
type Envelope struct {
	Content []TextBlock `json:"content"`
	IsError bool        `json:"isError"`
}

// Text joins the envelope's text blocks.
func (e Envelope) Text() string {
	parts := make([]string, 0, len(e.Content))
	for _, block := range e.Content {
		parts = append(parts, block.Text)
	}
	return strings.Join(parts, "\n")
}

// Success builds a non-error envelope with a single text block.
func Success(text string) Envelope {
	return Envelope{Content: []TextBlock{{Type: "text", Text: text}}}
}

// Failure builds an error envelope reading "{Label} error: {message}".
func Failure(op Operation, err error) Envelope {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Envelope{
		Content: []TextBlock{{Type: "text", Text: fmt.Sprintf("%s error: %s", op.Label(), msg)}},
		IsError: true,
	}
}

// Outcome is what an operation produces before it reaches the boundary:
// either success text or an error, never both.
type Outcome struct {
	Text string
	Err  error
}

// Envelope converts the outcome for op.
func (o Outcome) Envelope(op Operation) Envelope {
	if o.Err != nil {
		return Failure(op, o.Err)
	}
	return Success(o.Text)
}

// FormatCommandResult renders a command result. Output that is not valid
// UTF-8 has the offending bytes replaced.
func FormatCommandResult(res *sshutil.CommandResult) string {
	return fmt.Sprintf("stdout:\n%s\nstderr:\n%s\nexit_code: %d",
		decode(res.Stdout), decode(res.Stderr), res.ExitCode)
}

// FormatUpload renders a successful upload.
func FormatUpload(localPath, remotePath string) string {
	return fmt.Sprintf("SFTP upload success: %s -> %s", localPath, remotePath)
}

// FormatDownload renders a successful download.
func FormatDownload(remotePath, localPath string) string {
	return fmt.Sprintf("SFTP download success: %s -> %s", remotePath, localPath)
}

func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
