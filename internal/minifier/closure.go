package minifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conneroisu/markupc/internal/errors"
	"github.com/conneroisu/markupc/internal/version"
)

// DefaultClosureCompilerURL is the public Closure Compiler web service.
const DefaultClosureCompilerURL = "https://closure-compiler.appspot.com/compile"

// ClosureCompilerService posts the source to a Closure Compiler web service.
type ClosureCompilerService struct {
	URL              string
	CompilationLevel string
	// ExcludeDefaultExterns drops the browser externs the service adds by
	// default.
	ExcludeDefaultExterns bool
	Client                *http.Client
}

// NewClosureCompilerService takes an optional service URL and compilation
// level as arguments.
func NewClosureCompilerService(args ...string) *ClosureCompilerService {
	c := &ClosureCompilerService{
		URL:              DefaultClosureCompilerURL,
		CompilationLevel: "ADVANCED_OPTIMIZATIONS",
		Client:           &http.Client{Timeout: 20 * time.Second},
	}
	if len(args) > 0 && args[0] != "" {
		c.URL = args[0]
	}
	if len(args) > 1 && args[1] != "" {
		c.CompilationLevel = args[1]
	}
	return c
}

// Name implements Named.
func (c *ClosureCompilerService) Name() string { return "ClosureCompilerService" }

type closureResponse struct {
	CompiledCode string         `json:"compiledCode"`
	Errors       []closureIssue `json:"errors"`
	ServerErrors []closureIssue `json:"serverErrors"`
}

type closureIssue struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
	Line  int    `json:"lineno"`
}

// Minify implements Minifier.
func (c *ClosureCompilerService) Minify(ctx context.Context, src string) (string, error) {
	form := url.Values{}
	form.Set("js_code", src)
	form.Set("compilation_level", c.CompilationLevel)
	form.Set("output_format", "json")
	form.Add("output_info", "compiled_code")
	form.Add("output_info", "errors")
	if c.ExcludeDefaultExterns {
		form.Set("exclude_default_externs", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.NewMinifyError(c.Name(), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", version.UserAgent())

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.NewMinifyError(c.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.NewMinifyError(c.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.NewMinifyError(c.Name(), fmt.Errorf("service returned %s", resp.Status))
	}

	var out closureResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errors.NewMinifyError(c.Name(), fmt.Errorf("decoding response: %w", err))
	}
	if issues := append(out.ServerErrors, out.Errors...); len(issues) > 0 {
		first := issues[0]
		return "", errors.NewMinifyError(c.Name(), fmt.Errorf("line %d: %s", first.Line, first.Error)).
			WithContext("errors", len(issues))
	}

	return out.CompiledCode, nil
}
