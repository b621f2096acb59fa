package checker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bolasblack/stylesync/internal/util"
)

// DefaultJava is the java executable used when none is configured.
const DefaultJava = "java"

// CLIOptions configures a CLI checker.
type CLIOptions struct {
	// Java is the java executable (default "java").
	Java string
	// Jar is the Checkstyle "all" jar.
	Jar string
	// TempDir holds the per-invocation properties files (default os temp dir).
	TempDir string
}

// CLI runs Checkstyle as a subprocess through the environment's
// CommandRunner: java -jar <jar> -c <config> -f xml [-p <props>] <paths>.
type CLI struct {
	env     *util.Env
	java    string
	jar     string
	tempDir string
}

// NewCLI creates a CLI checker.
func NewCLI(env *util.Env, opts CLIOptions) *CLI {
	java := opts.Java
	if java == "" {
		java = DefaultJava
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &CLI{env: env, java: java, jar: opts.Jar, tempDir: tempDir}
}

// Check implements Checker.
func (c *CLI) Check(ctx context.Context, paths []string, configPath string, properties map[string]string) (Result, error) {
	if len(paths) == 0 {
		return Result{}, nil
	}
	if c.jar == "" {
		return nil, ErrNoJar
	}
	log := util.OrDiscard(c.env.Log)

	args := []string{"-jar", c.jar, "-c", configPath, "-f", "xml"}
	if len(properties) > 0 {
		propsFile, err := c.writeProperties(properties)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := c.env.Fs.Remove(propsFile); err != nil {
				log.Debug("failed to remove properties file", slog.String("path", propsFile), slog.String("error", err.Error()))
			}
		}()
		args = append(args, "-p", propsFile)
	}
	args = append(args, paths...)

	log.Debug("running checkstyle", slog.Int("files", len(paths)), slog.String("config", configPath))
	output, runErr := c.env.Cmd.RunQuiet(ctx, c.java, args...)

	// Checkstyle exits with the number of errors found, so a failed run
	// with a report is still a successful check.
	report, ok := extractReport(output)
	if !ok {
		if modErr := detectModuleInit(string(output)); modErr != nil {
			return nil, modErr
		}
		if runErr != nil {
			return nil, fmt.Errorf("checkstyle failed: %w: %s", runErr, strings.TrimSpace(string(output)))
		}
		return nil, ErrNoReport
	}
	return parseReport(report)
}

var versionRe = regexp.MustCompile(`(?i)checkstyle version:?\s*(\S+)`)

// Version returns the version reported by the configured jar.
func (c *CLI) Version(ctx context.Context) (string, error) {
	if c.jar == "" {
		return "", ErrNoJar
	}
	output, err := c.env.Cmd.RunQuiet(ctx, c.java, "-jar", c.jar, "--version")
	if err != nil {
		return "", fmt.Errorf("failed to query checkstyle version: %w: %s", err, strings.TrimSpace(string(output)))
	}
	m := versionRe.FindSubmatch(output)
	if m == nil {
		return "", fmt.Errorf("unrecognized checkstyle version output: %q", strings.TrimSpace(string(output)))
	}
	return string(m[1]), nil
}

// writeProperties stores properties in Java properties format under a
// unique name so concurrent checks never share a file.
func (c *CLI) writeProperties(properties map[string]string) (string, error) {
	if err := c.env.Fs.MkdirAll(c.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	path := filepath.Join(c.tempDir, "stylesync-"+uuid.New().String()+".properties")
	if err := afero.WriteFile(c.env.Fs, path, []byte(formatProperties(properties)), 0o600); err != nil {
		return "", fmt.Errorf("failed to write properties file: %w", err)
	}
	return path, nil
}

func formatProperties(properties map[string]string) string {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(escapeProperty(k, true))
		b.WriteByte('=')
		b.WriteString(escapeProperty(properties[k], false))
		b.WriteByte('\n')
	}
	return b.String()
}

func escapeProperty(s string, key bool) string {
	var b strings.Builder
	for i, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '=', ':', '#', '!':
			if key {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case ' ':
			if key || i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
