package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/axiom/ucws/internal/app"
	"github.com/axiom/ucws/internal/models"
)

var (
	codeContext      string
	codePayload      string
	codePayloadFile  string
	codeRequestFile  string
	codeTarget       string
	codeModel        string
	codeExtra        []string
	codeExistingFile string
	codeModule       string
	codeFunction     string
	codeApply        bool
	codeJSON         bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate code for a description",
	Example: `  ucwsctl generate --context HIERARCHICAL_GEN_COMPLETE_TOOL \
    --payload "a tool that summarizes CSV columns" --target tools/csv_summary.py`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCode(cmd.Context(), false)
	},
}

var modifyCmd = &cobra.Command{
	Use:   "modify",
	Short: "Modify an existing function or snippet",
	Example: `  ucwsctl modify --context SELF_FIX_TOOL --module tools.calc --function add \
    --payload "add returns the difference instead of the sum" --apply`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCode(cmd.Context(), true)
	},
}

func init() {
	for _, c := range []*cobra.Command{generateCmd, modifyCmd} {
		c.Flags().StringVarP(&codeContext, "context", "c", "", "Request context (e.g. NEW_TOOL, SELF_FIX_TOOL)")
		c.Flags().StringVarP(&codePayload, "payload", "p", "", "Description or instruction")
		c.Flags().StringVar(&codePayloadFile, "payload-file", "", "Read the payload from a file ('-' for stdin)")
		c.Flags().StringVar(&codeRequestFile, "request", "", "Read a JSON request body {context, request_payload, ...} from a file ('-' for stdin)")
		c.Flags().StringVarP(&codeModel, "model", "m", "", "Model override")
		c.Flags().StringArrayVar(&codeExtra, "set", nil, "Additional context key=value (repeatable)")
		c.Flags().BoolVar(&codeJSON, "json", false, "Print the full result as JSON")
		c.MarkFlagsOneRequired("context", "request")
	}
	generateCmd.Flags().StringVarP(&codeTarget, "target", "t", "", "Save the generated code to this path below OUTPUT_ROOT")

	modifyCmd.Flags().StringVar(&codeExistingFile, "existing-file", "", "Modify the code in this file instead of a module function")
	modifyCmd.Flags().StringVar(&codeModule, "module", "", "Dotted module path below SELFMOD_ROOT")
	modifyCmd.Flags().StringVar(&codeFunction, "function", "", "Function name, Class.method for methods")
	modifyCmd.Flags().BoolVar(&codeApply, "apply", false, "Write the modified function back to its module")

	rootCmd.AddCommand(generateCmd, modifyCmd)
}

func runCode(parent context.Context, modify bool) error {
	req, err := buildRequest(modify)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{SkipTemporal: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	var res *models.GenerationResult
	if modify {
		res = a.Service.ModifyCode(ctx, req)
	} else {
		res = a.Service.GenerateCode(ctx, req)
	}
	return printResult(res)
}

func buildRequest(modify bool) (models.GenerationRequest, error) {
	if codeRequestFile != "" {
		return decodeRequest(codeRequestFile, modify)
	}

	c, err := models.ParseContext(codeContext)
	if err != nil {
		return models.GenerationRequest{}, err
	}
	if c.IsModify() != modify {
		return models.GenerationRequest{}, fmt.Errorf("context %s is not valid for this command", c)
	}

	payload := codePayload
	if codePayloadFile != "" {
		payload, err = readInput(codePayloadFile)
		if err != nil {
			return models.GenerationRequest{}, err
		}
	}
	if strings.TrimSpace(payload) == "" {
		return models.GenerationRequest{}, fmt.Errorf("a payload is required (--payload or --payload-file)")
	}

	req := models.GenerationRequest{
		Context:      c,
		Payload:      payload,
		Language:     "python",
		TargetPath:   codeTarget,
		ModulePath:   codeModule,
		FunctionName: codeFunction,
		ApplyChanges: codeApply,
	}
	if codeModel != "" {
		req.LLMOverrides = &models.LLMOverrides{Model: codeModel}
	}
	if len(codeExtra) > 0 {
		req.AdditionalContext = make(map[string]interface{}, len(codeExtra))
		for _, kv := range codeExtra {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return models.GenerationRequest{}, fmt.Errorf("--set expects key=value, got %q", kv)
			}
			req.AdditionalContext[k] = v
		}
	}
	if codeExistingFile != "" {
		code, err := readInput(codeExistingFile)
		if err != nil {
			return models.GenerationRequest{}, err
		}
		req.ExistingCode = &code
	}
	return req, nil
}

// decodeRequest reads a request in the same JSON shape the HTTP API accepts
func decodeRequest(path string, modify bool) (models.GenerationRequest, error) {
	body, err := readInput(path)
	if err != nil {
		return models.GenerationRequest{}, err
	}
	var req models.GenerationRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return models.GenerationRequest{}, fmt.Errorf("decode request %s: %w", path, err)
	}
	c, err := models.ParseContext(string(req.Context))
	if err != nil {
		return models.GenerationRequest{}, err
	}
	if c.IsModify() != modify {
		return models.GenerationRequest{}, fmt.Errorf("context %s is not valid for this command", c)
	}
	if strings.TrimSpace(req.Payload) == "" {
		return models.GenerationRequest{}, fmt.Errorf("request %s has no request_payload", path)
	}
	req.Context = c
	if req.Language == "" {
		req.Language = "python"
	}
	return req, nil
}

func readInput(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// printResult writes code (or the diff) to stdout and the status to stderr.
// A failed request exits non-zero.
func printResult(res *models.GenerationResult) error {
	if codeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		switch {
		case res.Diff != "":
			fmt.Print(res.Diff)
		case res.Code != "":
			fmt.Println(res.Code)
		case res.Outline != nil:
			out, _ := json.MarshalIndent(res.Outline, "", "  ")
			fmt.Println(string(out))
		}
		fmt.Fprintf(os.Stderr, "status: %s (task %s)\n", res.Status, res.TaskID)
		if res.SavedToPath != "" {
			fmt.Fprintf(os.Stderr, "saved to: %s\n", res.SavedToPath)
		}
	}
	if !res.Status.IsSuccess() {
		return fmt.Errorf("%s: %s", res.Status, res.Error)
	}
	return nil
}
