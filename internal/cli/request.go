package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/templates"

	"slowclaw/internal/publish/facade"
	"slowclaw/internal/publish/models"
)

var (
	requestLong = templates.LongDesc(`
		Issue one authenticated XRPC call with the configured session and print
		the response. Relative targets resolve against the service URL.`)

	requestExample = templates.Examples(`
		publishctl request /xrpc/com.atproto.server.getSession

		publishctl request -X POST /xrpc/com.atproto.repo.createRecord --data @record.json`)
)

// RequestOptions defines the options for the `request` command.
type RequestOptions struct {
	Method  string
	Target  string
	Headers []string
	Data    string

	body    any
	headers map[string]string
	root    *RootOptions
}

// NewRequestOptions provides an initialised RequestOptions instance.
func NewRequestOptions(root *RootOptions) *RequestOptions {
	return &RequestOptions{root: root}
}

// NewRequestCommand creates the `request` command.
func NewRequestCommand(o *RequestOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "request TARGET",
		DisableFlagsInUseLine: true,
		Short:                 "Send an authenticated XRPC request",
		Long:                  requestLong,
		Example:               requestExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.Method, "method", "X", "GET", "HTTP method")
	flags.StringArrayVarP(&o.Headers, "header", "H", nil, "Extra header as 'Name: value' (repeatable)")
	flags.StringVarP(&o.Data, "data", "d", "", "Request body; JSON is sent as JSON, @file reads a file")

	return cmd
}

// Complete reads the target and parses headers and body.
func (o *RequestOptions) Complete(_ *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("request target is required")
	}
	o.Target = strings.TrimSpace(args[0])
	o.Method = strings.ToUpper(strings.TrimSpace(o.Method))

	o.headers = make(map[string]string, len(o.Headers))
	for _, h := range o.Headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("invalid header %q: want 'Name: value'", h)
		}
		o.headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	body, err := readData(o.Data, o.root.In)
	if err != nil {
		return err
	}
	o.body = body
	return nil
}

// Validate requires a target.
func (o *RequestOptions) Validate() error {
	if o.Target == "" {
		return errors.New("request target is required")
	}
	return nil
}

// Run sends the request and prints the mirrored response as JSON.
func (o *RequestOptions) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := o.root.components()
	if err != nil {
		return err
	}
	sess, err := c.Sessions.Session(ctx)
	if err != nil {
		return describe(err)
	}

	resp, err := c.Facade.Do(ctx, sess, facade.Request{
		Method:  o.Method,
		Target:  o.Target,
		Headers: o.headers,
		Body:    o.body,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(o.root.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("remote answered %d %s", resp.Status, resp.StatusText)
	}
	return nil
}

// readData resolves --data: "" is no body, "@-" reads stdin, "@path" reads a
// file. JSON text is sent as raw JSON; anything else as a plain string.
func readData(data string, stdin io.Reader) (any, error) {
	if data == "" {
		return nil, nil
	}
	raw := []byte(data)
	if strings.HasPrefix(data, "@") {
		var err error
		raw, err = readSource(strings.TrimPrefix(data, "@"), stdin)
		if err != nil {
			return nil, err
		}
	}
	if json.Valid(raw) {
		return json.RawMessage(raw), nil
	}
	return string(raw), nil
}

func printResult(w io.Writer, result *models.PublishResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err := fmt.Fprintf(w, "%s %s\n  cid %s\n", green("published"), result.URI, result.CID)
	return err
}

func readSource(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		if stdin == nil {
			return nil, fmt.Errorf("no stdin available")
		}
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return raw, nil
}
