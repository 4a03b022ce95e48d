package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/remoteops/internal/errors"
	"github.com/rileyhilliard/remoteops/internal/logger"
	"github.com/rileyhilliard/remoteops/internal/tools"
	"github.com/spf13/cobra"
)

const maxRequestLine = 64 << 20

// Caller runs one tool call. *tools.Toolkit satisfies it.
type Caller interface {
	Call(ctx context.Context, tool string, args map[string]any) tools.Envelope
}

// Request is one line of serve input.
type Request struct {
	ID        string         `json:"id,omitempty"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Response is one line of serve output. Exactly one of Result and Error is set.
type Response struct {
	ID     string          `json:"id"`
	Result *tools.Envelope `json:"result,omitempty"`
	Error  *JSONError      `json:"error,omitempty"`
}

// Server answers line-delimited JSON requests. Requests run concurrently,
// so responses may arrive out of order; match them by id.
type Server struct {
	caller        Caller
	maxConcurrent int
	log           logger.Logger

	mu  sync.Mutex
	enc *json.Encoder
}

// NewServer writes responses to out. maxConcurrent <= 0 means unlimited.
func NewServer(caller Caller, out io.Writer, maxConcurrent int, log logger.Logger) *Server {
	if log == nil {
		log = logger.Noop()
	}
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return &Server{
		caller:        caller,
		maxConcurrent: maxConcurrent,
		log:           log,
		enc:           enc,
	}
}

// Serve reads requests from in until EOF or ctx is cancelled, then waits
// for in-flight calls to finish.
func (s *Server) Serve(ctx context.Context, in io.Reader) error {
	var sem chan struct{}
	if s.maxConcurrent > 0 {
		sem = make(chan struct{}, s.maxConcurrent)
	}
	var wg sync.WaitGroup
	defer wg.Wait()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		req, err := parseRequest(line)
		if err != nil {
			s.write(Response{ID: req.ID, Error: &JSONError{Code: errors.ErrArgs, Message: err.Error()}})
			continue
		}

		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
		}

		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			s.handle(ctx, req)
		}(req)
	}

	if err := scanner.Err(); err != nil {
		return errors.WrapWithCode(err, errors.ErrArgs, "Failed to read requests", "Keep each request on one line")
	}
	return nil
}

func (s *Server) handle(ctx context.Context, req Request) {
	start := time.Now()
	env := s.caller.Call(ctx, req.Tool, req.Arguments)
	s.log.Debug("request %s (%s) finished in %s, isError=%t", req.ID, req.Tool, time.Since(start).Round(time.Millisecond), env.IsError)
	s.write(Response{ID: req.ID, Result: &env})
}

func (s *Server) write(resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		s.log.Error("write response %s: %v", resp.ID, err)
	}
}

// parseRequest decodes one line. A missing id is filled with a UUID so every
// response can be matched.
func parseRequest(line string) (Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		// The id could not be read; give the reply one so it can still be correlated
		return Request{ID: uuid.NewString()}, errors.WrapWithCode(err, errors.ErrArgs, "invalid request: "+err.Error(), "")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Tool == "" {
		return req, errors.New(errors.ErrArgs, "invalid request: missing tool", "")
	}
	return req, nil
}

func newServeCmd(app *App) *cobra.Command {
	var maxConcurrent int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer line-delimited JSON tool calls on stdin",
		Long: `Read one JSON request per line from stdin and write one JSON response per
line to stdout. Requests run concurrently, each on its own SSH session.

Request:  {"id":"1","tool":"ssh_execute_command","arguments":{...}}
Response: {"id":"1","result":{"content":[{"type":"text","text":"..."}],"isError":false}}

Lines that are not valid requests get {"id":...,"error":{...}}. Logs go to
stderr; set REMOTEOPS_DEBUG=1 or pass --verbose for per-request timing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kit, cfg, err := app.toolkit()
			if err != nil {
				return err
			}
			limit := cfg.Serve.MaxConcurrent
			if cmd.Flags().Changed("max-concurrent") {
				limit = maxConcurrent
			}
			srv := NewServer(kit, app.Out, limit, app.logger())
			return srv.Serve(cmd.Context(), app.In)
		},
	}
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "cap on in-flight requests, 0 for unlimited (default from config)")
	return cmd
}
