package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s0up4200/podium-go/filter"
	"github.com/s0up4200/podium-go/podium"
)

var (
	// list flags
	listParams  []string
	listPage    int
	listPerPage int
	listCursor  string
	listWhere   string

	// create/update flags
	dataArg string

	// delete flags
	noConfirm bool
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <resource> <id> [id...]",
	Short: "Fetch one or more entities by id",
	Long: `Fetch entities from a resource. Several ids are fetched concurrently and
printed as a JSON array in the order given.`,
	Args:    cobra.MinimumNArgs(2),
	PreRunE: initializeApp,
	RunE:    runGet,
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list <resource>",
	Short: "List a resource with optional pagination and filtering",
	Long: `List the entities of a resource.

Query parameters are passed with --param key=value and may repeat. Pagination
uses --page/--per-page or --cursor; the parameter names follow the server's
API version (see podium.api_version and --legacy).

--where applies an expression to each returned record on the client side,
for example:
  podium list members --where 'status == "active" and created > daysAgo(30)'`,
	Args:    cobra.ExactArgs(1),
	PreRunE: initializeApp,
	RunE:    runList,
}

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:     "create <resource>",
	Short:   "Create an entity from JSON",
	Args:    cobra.ExactArgs(1),
	PreRunE: initializeApp,
	RunE:    runCreate,
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:     "update <resource> <id>",
	Short:   "Replace an entity with JSON",
	Args:    cobra.ExactArgs(2),
	PreRunE: initializeApp,
	RunE:    runUpdate,
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:     "delete <resource> <id>",
	Short:   "Delete an entity",
	Args:    cobra.ExactArgs(2),
	PreRunE: initializeApp,
	RunE:    runDelete,
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)

	listCmd.Flags().StringArrayVar(&listParams, "param", nil, "query parameter as key=value (repeatable)")
	listCmd.Flags().IntVar(&listPage, "page", 0, "page number")
	listCmd.Flags().IntVar(&listPerPage, "per-page", 0, "page size")
	listCmd.Flags().StringVar(&listCursor, "cursor", "", "cursor to continue from")
	listCmd.Flags().StringVarP(&listWhere, "where", "w", "", "filter expression applied to returned records")
	listCmd.MarkFlagsMutuallyExclusive("page", "cursor")

	for _, c := range []*cobra.Command{createCmd, updateCmd} {
		c.Flags().StringVarP(&dataArg, "data", "D", "", "JSON body, @file to read a file, or - for stdin")
		_ = c.MarkFlagRequired("data")
	}

	deleteCmd.Flags().BoolVar(&noConfirm, "no-confirm", false, "skip confirmation prompt")
}

func runGet(cmd *cobra.Command, args []string) error {
	res := client.Resource(args[0])
	ids := args[1:]

	if len(ids) == 1 {
		data, err := res.Get(cmd.Context(), ids[0])
		if err != nil {
			return explain(err)
		}
		return printJSON(cmd.OutOrStdout(), data)
	}

	data, err := res.GetMany(cmd.Context(), ids...)
	if err != nil {
		return explain(err)
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func runList(cmd *cobra.Command, args []string) error {
	params, err := parseParams(listParams)
	if err != nil {
		return err
	}

	var compiled filter.CompiledFilter
	if listWhere != "" {
		compiled, err = filter.NewExprCompiler().Compile(listWhere)
		if err != nil {
			return fmt.Errorf("invalid filter expression: %w", err)
		}
	}

	res := client.Resource(args[0])
	logger.Debug().Str("resource", res.Name()).Interface("params", params).Msg("Listing")

	data, err := res.List(cmd.Context(), params, buildPaginator(listPage, listPerPage, listCursor))
	if err != nil {
		return explain(err)
	}

	if compiled != nil {
		data, err = filter.Payload(compiled, data)
		if err != nil {
			if errors.Is(err, filter.ErrNoRecords) {
				return fmt.Errorf("cannot apply --where: %w", err)
			}
			// records that could not be evaluated are skipped
			logger.Warn().Err(err).Str("filter", compiled.Expression()).Msg("Some records were skipped")
		}
	}

	return printJSON(cmd.OutOrStdout(), data)
}

func runCreate(cmd *cobra.Command, args []string) error {
	body, err := readData(dataArg, cmd.InOrStdin())
	if err != nil {
		return err
	}

	data, err := client.Resource(args[0]).Post(cmd.Context(), body)
	if err != nil {
		return explain(err)
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	body, err := readData(dataArg, cmd.InOrStdin())
	if err != nil {
		return err
	}

	data, err := client.Resource(args[0]).Update(cmd.Context(), args[1], body)
	if err != nil {
		return explain(err)
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func runDelete(cmd *cobra.Command, args []string) error {
	res := client.Resource(args[0])

	if !noConfirm {
		fmt.Fprintf(cmd.ErrOrStderr(), "Delete %s/%s? [y/N]: ", res.Name(), args[1])
		answer, err := readLine(cmd.InOrStdin())
		if err != nil || !strings.EqualFold(answer, "y") {
			logger.Info().Msg("Deletion cancelled")
			return nil
		}
	}

	data, err := res.Delete(cmd.Context(), args[1])
	if err != nil {
		return explain(err)
	}

	logger.Info().Str("resource", res.Name()).Str("id", args[1]).Msg("Deleted")
	if data == nil {
		return nil
	}
	return printJSON(cmd.OutOrStdout(), data)
}

// buildPaginator returns nil when no pagination flag was given
func buildPaginator(page, perPage int, cursor string) *podium.Paginator {
	switch {
	case cursor != "":
		return podium.NewCursorPaginator(cursor, perPage)
	case page > 0 || perPage > 0:
		return podium.NewPaginator(page, perPage)
	}
	return nil
}

// parseParams turns key=value pairs into query parameters. A repeated key
// becomes a multi-valued parameter.
func parseParams(pairs []string) (podium.Params, error) {
	params := podium.Params{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", pair)
		}

		switch existing := params[key].(type) {
		case nil:
			params[key] = value
		case string:
			params[key] = []string{existing, value}
		case []string:
			params[key] = append(existing, value)
		}
	}
	return params, nil
}

// readData reads a JSON body from the --data argument. Wire timestamps in the
// input are decoded so they are sent back in canonical form.
func readData(arg string, stdin io.Reader) (any, error) {
	var raw []byte
	var err error

	switch {
	case arg == "-":
		raw, err = io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		raw, err = os.ReadFile(strings.TrimPrefix(arg, "@"))
	default:
		raw = []byte(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON data: %w", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid JSON data: unexpected data after the top-level value")
	}
	return podium.ToNative(body), nil
}

// printJSON writes v in the API's own representation. Output is indented
// when stdout is a terminal.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if f, ok := w.(*os.File); !ok || isTerminal(f) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(podium.ToWire(v))
}

// explain adds a next step to session errors
func explain(err error) error {
	switch {
	case errors.Is(err, podium.ErrInvalidToken):
		return fmt.Errorf("%w (run \"podium login\")", err)
	case podium.IsInvalidToken(err):
		return fmt.Errorf("%w: the session was rejected and has been cleared (run \"podium login\")", err)
	}

	var apiErr *podium.APIError
	if errors.As(err, &apiErr) && apiErr.IsNotFound() {
		return fmt.Errorf("not found: %w", err)
	}
	return err
}
