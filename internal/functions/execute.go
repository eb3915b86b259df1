package functions

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/lucasnoah/mcpforge/internal/fsutil"
	"github.com/lucasnoah/mcpforge/internal/mcp"
	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

var placeholderRe = regexp.MustCompile(`^\{([\w.]+)\}$`)

// execute runs a declared jar tool: java <jvmargs> -jar <jar> <args>.
type execute struct {
	deps *Deps
	name string
	decl mcpconfig.Function
	jar  *mcp.JarFuture
}

func (f *execute) Execute(ctx context.Context, env *mcp.Environment) (string, error) {
	jar, err := f.jar.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve %s (%s): %w", f.name, f.decl.Version, err)
	}

	values := make(map[string]string, len(env.Args())+2)
	for k, v := range env.Args() {
		values[k] = v
	}
	output := env.File("output.jar")
	if v, ok := values["output"]; ok && v != "" {
		output = env.File(v)
	}
	values["output"] = output
	logPath := env.File("console.log")
	values["log"] = logPath

	jvmArgs, err := f.fill(env, f.decl.JvmArgs, values)
	if err != nil {
		return "", err
	}
	args, err := f.fill(env, f.decl.Args, values)
	if err != nil {
		return "", err
	}

	store, _ := f.deps.sidecar(env, "lastinput.sha1")
	if err := store.AddFile("jar", jar); err != nil {
		return "", err
	}
	store.Add("jvmargs", strings.Join(jvmArgs, "\n")).Add("args", strings.Join(args, "\n"))
	for _, k := range sortedKeys(values) {
		v := values[k]
		if k == "output" || k == "log" || !fsutil.Exists(v) {
			continue
		}
		if err := store.AddFile("arg/"+k, v); err != nil {
			return "", err
		}
	}
	if store.IsSame() && fsutil.Exists(output) {
		env.Logger().Debug().Str("output", output).Msg("tool inputs unchanged")
		return output, nil
	}

	if err := os.MkdirAll(env.WorkDir(), 0o755); err != nil {
		return "", err
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("create console log: %w", err)
	}
	defer logFile.Close()

	cmdArgs := append(append(append([]string{}, jvmArgs...), "-jar", jar), args...)
	fmt.Fprintf(logFile, "Step: %s (%s)\nJava: %s\nArguments: %s\nJVM args: %s\nJar: %s\n===\n",
		env.StepName(), env.StepType(), f.deps.Java, strings.Join(args, " "), strings.Join(jvmArgs, " "), jar)

	runCtx := ctx
	if f.deps.ExecTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, f.deps.ExecTimeout)
		defer cancel()
	}
	start := time.Now()
	code, err := f.deps.Runner.Run(runCtx, Command{
		Dir:    env.WorkDir(),
		Name:   f.deps.Java,
		Args:   cmdArgs,
		Env:    f.decl.Env.Environ(),
		Output: logFile,
	})
	if err != nil {
		return "", fmt.Errorf("run %s: %w", f.name, err)
	}
	env.Logger().Info().Str("tool", f.name).Int("exit", code).Dur("took", time.Since(start)).Msg("external tool finished")
	if code != 0 {
		if !f.deps.AllowNonzeroExit {
			return "", &ExternalProcessError{Step: env.StepName(), ExitCode: code, Log: logPath}
		}
		env.Logger().Warn().Int("exit", code).Str("log", logPath).Msg("ignoring non-zero exit")
	}
	if !fsutil.Exists(output) {
		return "", fmt.Errorf("step %q: %s produced no output at %s", env.StepName(), f.name, output)
	}
	if err := store.Save(); err != nil {
		return "", err
	}
	return output, nil
}

// fill replaces every `{name}` argument with the step value or data entry
// of that name.
func (f *execute) fill(env *mcp.Environment, in []string, values map[string]string) ([]string, error) {
	out := make([]string, len(in))
	for i, a := range in {
		m := placeholderRe.FindStringSubmatch(a)
		if m == nil {
			out[i] = a
			continue
		}
		if v, ok := values[m[1]]; ok {
			out[i] = v
			continue
		}
		if v, ok := env.Data(m[1]); ok {
			out[i] = v
			continue
		}
		return nil, missingArg(env, m[1])
	}
	return out, nil
}
