package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dhcgn/rawmail/export"
	"github.com/dhcgn/rawmail/model"
	"github.com/dhcgn/rawmail/parser"
	"github.com/dhcgn/rawmail/runner"
)

type parseOptions struct {
	id       string
	format   string
	decoded  bool
	envelope bool
}

func newParseCmd() *cobra.Command {
	opts := &parseOptions{}
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a single base64url-encoded mail, provider envelope or raw mail file",
		Long: "Parse reads one mail from file (or stdin when the file is omitted or -) and " +
			"prints the parsed message. By default the input is the base64url-encoded raw mail; " +
			"--envelope accepts a provider message resource in JSON, --decoded a plain RFC2822 file.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			return runParse(cmd.OutOrStdout(), data, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.id, "id", "", "Message id to assign (default: a random UUID)")
	flags.StringVar(&opts.format, "format", export.FormatJSON, "Output format: json or yaml")
	flags.BoolVar(&opts.decoded, "decoded", false, "Input is a plain RFC2822 mail instead of base64url")
	flags.BoolVar(&opts.envelope, "envelope", false, "Input is a JSON message resource with a raw field")
	cmd.MarkFlagsMutuallyExclusive("decoded", "envelope")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// runParse writes the parsed record to out. A parse failure is returned after
// the partial message has been written.
func runParse(out io.Writer, data []byte, opts *parseOptions) error {
	id := opts.id
	if id == "" {
		id = uuid.NewString()
	}

	var res parser.Result
	switch {
	case opts.envelope:
		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		if env.ID == "" {
			env.ID = id
		}
		res = parser.ParseEnvelope(env)
	case opts.decoded:
		raw := string(data)
		msg, err := parser.Parse(raw, id)
		res = parser.Result{Message: msg, Raw: raw, Err: err}
	default:
		res = parser.ParseString(strings.TrimSpace(string(data)), id)
	}

	w, err := export.NewWriter(out, opts.format)
	if err != nil {
		return err
	}
	item := model.Item{
		Message: res.Message,
		Hash:    runner.Hash([]byte(res.Raw)),
		Size:    int64(len(res.Raw)),
		Err:     res.Err,
	}
	if err := w.Write(item); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return res.Err
}
